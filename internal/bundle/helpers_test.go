package bundle

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

type rawBlock struct {
	uncompressedSize uint32
	compressedSize   uint32
	flags            uint16
}

type rawEntry struct {
	offset uint64
	size   uint64
	flags  uint32
	path   string
}

// rawBundle lays out a bundle by hand with an uncompressed blocks-info segment
type rawBundle struct {
	signature string
	version   uint32
	flags     uint32
	blocks    []rawBlock
	entries   []rawEntry
	payload   []byte
}

func (rb rawBundle) bytes(t *testing.T) []byte {
	t.Helper()

	require.Zero(t, rb.flags&0x3F, "raw bundles always carry an uncompressed blocks info")

	be := binary.BigEndian
	var info bytes.Buffer
	info.Write(make([]byte, 16))
	require.NoError(t, binary.Write(&info, be, uint32(len(rb.blocks))))
	for _, b := range rb.blocks {
		require.NoError(t, binary.Write(&info, be, b.uncompressedSize))
		require.NoError(t, binary.Write(&info, be, b.compressedSize))
		require.NoError(t, binary.Write(&info, be, b.flags))
	}
	require.NoError(t, binary.Write(&info, be, uint32(len(rb.entries))))
	for _, e := range rb.entries {
		require.NoError(t, binary.Write(&info, be, e.offset))
		require.NoError(t, binary.Write(&info, be, e.size))
		require.NoError(t, binary.Write(&info, be, e.flags))
		info.WriteString(e.path)
		info.WriteByte(0)
	}

	signature := rb.signature
	if signature == "" {
		signature = Signature
	}

	var out bytes.Buffer
	out.WriteString(signature)
	out.WriteByte(0)
	require.NoError(t, binary.Write(&out, be, rb.version))
	out.WriteString("5.x.x\x00")
	out.WriteString("2019.4.40f1\x00")
	sizePos := out.Len()
	require.NoError(t, binary.Write(&out, be, uint64(0)))
	require.NoError(t, binary.Write(&out, be, uint32(info.Len())))
	require.NoError(t, binary.Write(&out, be, uint32(info.Len())))
	require.NoError(t, binary.Write(&out, be, rb.flags))

	pad := func() {
		for out.Len()%16 != 0 {
			out.WriteByte(0)
		}
	}
	if rb.version >= 7 {
		pad()
	}
	out.Write(info.Bytes())
	if rb.flags&0x200 != 0 {
		pad()
	}
	out.Write(rb.payload)

	data := out.Bytes()
	be.PutUint64(data[sizePos:], uint64(len(data)))
	return data
}

// helloBundle is the minimal single-entry bundle with an uncompressed payload
func helloBundle() rawBundle {
	payload := []byte{0x48, 0x65, 0x6C, 0x6C, 0x6F}
	return rawBundle{
		version: 6,
		blocks:  []rawBlock{{uncompressedSize: 5, compressedSize: 5}},
		entries: []rawEntry{{offset: 0, size: 5, flags: 4, path: "data"}},
		payload: payload,
	}
}

// sampleBundle builds a bundle value with two entries over a partly compressible payload
func sampleBundle(version uint32, flags ArchiveFlags, blockCompression Compression, payloadSize int) *Bundle {
	payload := samplePayload(payloadSize)
	half := uint64(payloadSize / 2)

	return &Bundle{
		Signature:     Signature,
		Version:       version,
		UnityVersion:  "5.x.x",
		UnityRevision: "2021.3.8f1",
		Flags:         flags,
		Blocks: []Block{{
			UncompressedSize: uint32(payloadSize),
			CompressedSize:   uint32(payloadSize),
			Flags:            0x40 | uint16(blockCompression),
		}},
		Directory: []DirectoryEntry{
			{Offset: 0, Size: half, Flags: 4, Path: "CAB-0123456789abcdef"},
			{Offset: half, Size: uint64(payloadSize) - half, Flags: 0, Path: "CAB-0123456789abcdef.resS"},
		},
		Payload: payload,
	}
}

// samplePayload mixes repeated text with random bytes so every codec has work to do
func samplePayload(n int) []byte {
	rng := rand.New(rand.NewSource(int64(n) + 1))
	text := []byte("m_Name m_GameObject m_Enabled m_Script ")

	out := make([]byte, n)
	for i := 0; i < n; {
		if rng.Intn(4) == 0 {
			chunk := min(n-i, 64)
			rng.Read(out[i : i+chunk])
			i += chunk
			continue
		}
		i += copy(out[i:], text)
	}
	return out
}
