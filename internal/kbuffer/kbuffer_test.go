package kbuffer_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrzor/rawtrace/internal/kbuffer"
	"github.com/mrzor/rawtrace/internal/kbuffer/kbuffertest"
)

type record struct {
	ts         uint64
	data       []byte
	size       int
	recordSize int
}

func readAll(t *testing.T, b *kbuffer.Buffer) []record {
	t.Helper()
	var out []record
	for {
		data, ts, ok := b.Read()
		if !ok {
			return out
		}
		out = append(out, record{
			ts:         ts,
			data:       append([]byte(nil), data...),
			size:       b.EventSize(),
			recordSize: b.CurrSize(),
		})
		b.Next()
	}
}

func TestNew_InvalidLongSize(t *testing.T) {
	_, err := kbuffer.New(2, binary.LittleEndian)
	require.ErrorIs(t, err, kbuffer.ErrLongSize)

	_, err = kbuffer.New(kbuffer.LongSize8, nil)
	require.Error(t, err)
}

func TestLoad_ShortPage(t *testing.T) {
	b, err := kbuffer.New(kbuffer.LongSize8, binary.LittleEndian)
	require.NoError(t, err)
	assert.ErrorIs(t, b.Load(make([]byte, 10)), kbuffer.ErrShortPage)
}

func TestDecode_Layouts(t *testing.T) {
	tests := []struct {
		name     string
		longSize kbuffer.LongSize
		order    binary.ByteOrder
	}{
		{"little endian 64-bit", kbuffer.LongSize8, binary.LittleEndian},
		{"little endian 32-bit", kbuffer.LongSize4, binary.LittleEndian},
		{"big endian 64-bit", kbuffer.LongSize8, binary.BigEndian},
		{"big endian 32-bit", kbuffer.LongSize4, binary.BigEndian},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p1 := kbuffertest.Payload(tt.order, 7, 1, 2)          // 4 bytes, type_len 1
			p2 := kbuffertest.Payload(tt.order, 8, 1, 2, 3, 4, 5) // 7 bytes, explicit length
			page := kbuffertest.NewPage(tt.longSize, tt.order, 1000).
				Event(1010, p1).
				Event(1030, p2).
				Bytes(4096)

			b, err := kbuffer.New(tt.longSize, tt.order)
			require.NoError(t, err)
			require.NoError(t, b.Load(page))

			assert.Equal(t, uint64(1000), b.Timestamp())
			assert.Equal(t, 8+int(tt.longSize)+8+16, b.SubbufferSize())

			recs := readAll(t, b)
			require.Len(t, recs, 2)

			assert.Equal(t, uint64(1010), recs[0].ts)
			assert.Equal(t, p1, recs[0].data)
			assert.Equal(t, 4, recs[0].size)
			assert.Equal(t, 8, recs[0].recordSize)

			assert.Equal(t, uint64(1030), recs[1].ts)
			assert.Equal(t, 8, recs[1].size, "payload is padded to 4 bytes")
			assert.Equal(t, p2, recs[1].data[:len(p2)])
			assert.Equal(t, 16, recs[1].recordSize)
		})
	}
}

func TestDecode_TimeExtendAndAbsolute(t *testing.T) {
	order := binary.LittleEndian
	page := kbuffertest.NewPage(kbuffer.LongSize8, order, 0).
		Event(5, kbuffertest.Payload(order, 1, 0, 0)).
		Event(5+(3<<27)+17, kbuffertest.Payload(order, 2, 0, 0)).
		TimeStamp(1<<40).
		Event((1<<40)+3, kbuffertest.Payload(order, 3, 0, 0)).
		Bytes(4096)

	b, err := kbuffer.New(kbuffer.LongSize8, order)
	require.NoError(t, err)
	require.NoError(t, b.Load(page))

	recs := readAll(t, b)
	require.Len(t, recs, 3)
	assert.Equal(t, uint64(5), recs[0].ts)
	assert.Equal(t, uint64(5+(3<<27)+17), recs[1].ts)
	assert.Equal(t, uint64(1<<40)+3, recs[2].ts)
}

func TestDecode_PaddingSkipped(t *testing.T) {
	order := binary.LittleEndian
	page := kbuffertest.NewPage(kbuffer.LongSize8, order, 100).
		Event(110, kbuffertest.Payload(order, 1, 0, 0)).
		Padding(115, 12).
		Event(120, kbuffertest.Payload(order, 2, 0, 0)).
		Bytes(4096)

	b, err := kbuffer.New(kbuffer.LongSize8, order)
	require.NoError(t, err)
	require.NoError(t, b.Load(page))

	recs := readAll(t, b)
	require.Len(t, recs, 2)
	assert.Equal(t, uint64(110), recs[0].ts)
	// The padding delta still moves the clock forward.
	assert.Equal(t, uint64(120), recs[1].ts)
	assert.Equal(t, uint16(2), order.Uint16(recs[1].data))
}

func TestDecode_HugeLengthWordEndsPage(t *testing.T) {
	order := binary.LittleEndian
	tests := []struct {
		name string
		page *kbuffertest.Page
	}{
		{
			"explicit length",
			kbuffertest.NewPage(kbuffer.LongSize8, order, 0).
				Event(1, kbuffertest.Payload(order, 1, 0, 0, 0, 0)),
		},
		{
			"padding",
			kbuffertest.NewPage(kbuffer.LongSize8, order, 0).
				Padding(1, 12),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := tt.page.
				Event(2, kbuffertest.Payload(order, 2, 0, 0)).
				Bytes(4096)
			// The length word follows the first record header.
			order.PutUint32(page[20:], 0xfffffff0)

			b, err := kbuffer.New(kbuffer.LongSize8, order)
			require.NoError(t, err)
			require.NoError(t, b.Load(page))

			assert.NotPanics(t, func() {
				assert.Empty(t, readAll(t, b))
			})
			assert.Equal(t, 0, b.EventSize())
			assert.Equal(t, 0, b.CurrSize())
		})
	}
}

func TestDecode_EmptyPage(t *testing.T) {
	order := binary.LittleEndian
	b, err := kbuffer.New(kbuffer.LongSize8, order)
	require.NoError(t, err)
	require.NoError(t, b.Load(kbuffertest.NewPage(kbuffer.LongSize8, order, 1).Bytes(4096)))

	_, _, ok := b.Read()
	assert.False(t, ok)
	assert.Equal(t, 0, b.EventSize())
	assert.Equal(t, 16, b.SubbufferSize())
}

func TestDecode_TruncatedRecordEndsPage(t *testing.T) {
	order := binary.LittleEndian
	full := kbuffertest.NewPage(kbuffer.LongSize8, order, 0).
		Event(1, kbuffertest.Payload(order, 1, 0, 0)).
		Event(2, kbuffertest.Payload(order, 2, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0)).
		Bytes(0)
	// Cut the page in the middle of the second record.
	page := full[:len(full)-6]

	b, err := kbuffer.New(kbuffer.LongSize8, order)
	require.NoError(t, err)
	require.NoError(t, b.Load(page))

	assert.Greater(t, b.SubbufferSize(), len(page))
	recs := readAll(t, b)
	require.Len(t, recs, 1)
	assert.Equal(t, uint64(1), recs[0].ts)
}

func TestDecode_Reload(t *testing.T) {
	order := binary.LittleEndian
	buf := make([]byte, 4096)
	b, err := kbuffer.New(kbuffer.LongSize8, order)
	require.NoError(t, err)

	copy(buf, kbuffertest.NewPage(kbuffer.LongSize8, order, 10).
		Event(11, kbuffertest.Payload(order, 1, 0, 0)).Bytes(4096))
	require.NoError(t, b.Load(buf))
	require.Len(t, readAll(t, b), 1)

	copy(buf, kbuffertest.NewPage(kbuffer.LongSize8, order, 50).
		Event(51, kbuffertest.Payload(order, 4, 0, 0)).
		Event(52, kbuffertest.Payload(order, 5, 0, 0)).Bytes(4096))
	require.NoError(t, b.Load(buf))
	recs := readAll(t, b)
	require.Len(t, recs, 2)
	assert.Equal(t, uint64(51), recs[0].ts)
}

func TestMissedEvents(t *testing.T) {
	order := binary.LittleEndian
	b, err := kbuffer.New(kbuffer.LongSize8, order)
	require.NoError(t, err)

	require.NoError(t, b.Load(kbuffertest.NewPage(kbuffer.LongSize8, order, 0).
		Event(1, kbuffertest.Payload(order, 1, 0, 0)).Missed(42).Bytes(4096)))
	assert.Equal(t, 42, b.MissedEvents())
	assert.Len(t, readAll(t, b), 1)

	require.NoError(t, b.Load(kbuffertest.NewPage(kbuffer.LongSize8, order, 0).Missed(-1).Bytes(4096)))
	assert.Equal(t, -1, b.MissedEvents())

	require.NoError(t, b.Load(kbuffertest.NewPage(kbuffer.LongSize8, order, 0).Bytes(4096)))
	assert.Equal(t, 0, b.MissedEvents())
}
