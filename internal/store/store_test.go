package store

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tanq16/chunkrelay/internal/chunk"
)

func openMem(t *testing.T, compress bool) *Store {
	t.Helper()
	s, err := Open(Options{InMemory: true, Compress: compress})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// drain fills, acks and reassembles everything in the queue.
func drain(t *testing.T, s *Store, capacity int) ([]Message, []int) {
	t.Helper()
	var msgs []Message
	var sizes []int
	var r Reassembler
	buf := make([]byte, capacity)
	for s.HasData() {
		n, ok, err := s.Fill(buf)
		require.NoError(t, err)
		require.True(t, ok)
		require.GreaterOrEqual(t, n, 1)
		require.LessOrEqual(t, n, capacity)
		sizes = append(sizes, n)
		require.NoError(t, s.Ack())
		msg, err := r.Write(buf[:n])
		require.NoError(t, err)
		if msg != nil {
			msgs = append(msgs, *msg)
		}
	}
	return msgs, sizes
}

func TestFillSingleMessage(t *testing.T) {
	s := openMem(t, false)
	_, err := s.Enqueue(KindLog, []byte("boot ok"))
	require.NoError(t, err)

	msgs, sizes := drain(t, s, 64)
	require.Equal(t, []int{1 + 1 + 7}, sizes)
	require.Len(t, msgs, 1)
	require.Equal(t, KindLog, msgs[0].Kind)
	require.Equal(t, []byte("boot ok"), msgs[0].Payload)
}

func TestFillSplitsLargeMessage(t *testing.T) {
	s := openMem(t, false)
	payload := bytes.Repeat([]byte{0xAB, 0xCD, 0x01}, 100)
	_, err := s.Enqueue(KindCoredump, payload)
	require.NoError(t, err)
	_, err = s.Enqueue(KindTrace, []byte("evt"))
	require.NoError(t, err)

	msgs, sizes := drain(t, s, 32)
	require.Greater(t, len(sizes), 10)
	require.Len(t, msgs, 2)
	require.Equal(t, payload, msgs[0].Payload)
	require.Equal(t, KindCoredump, msgs[0].Kind)
	require.Equal(t, KindTrace, msgs[1].Kind)
}

func TestFillInvalidCapacity(t *testing.T) {
	s := openMem(t, false)
	_, err := s.Enqueue(KindLog, []byte("x"))
	require.NoError(t, err)

	buf := []byte{}
	n, ok, err := s.Fill(buf)
	require.ErrorIs(t, err, chunk.ErrInvalidArgument)
	require.False(t, ok)
	require.Zero(t, n)

	small := make([]byte, MinChunkSize-1)
	_, ok, err = s.Fill(small)
	require.ErrorIs(t, err, chunk.ErrInvalidArgument)
	require.False(t, ok)
	require.Equal(t, make([]byte, MinChunkSize-1), small)
}

func TestFillEmptyQueue(t *testing.T) {
	s := openMem(t, false)
	require.False(t, s.HasData())
	n, ok, err := s.Fill(make([]byte, 64))
	require.NoError(t, err)
	require.False(t, ok)
	require.Zero(t, n)
}

func TestRewindRedeliversChunk(t *testing.T) {
	s := openMem(t, false)
	_, err := s.Enqueue(KindMetrics, []byte("heartbeat-1"))
	require.NoError(t, err)

	first := make([]byte, 64)
	n1, ok, err := s.Fill(first)
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, s.HasData())

	s.Rewind()
	require.True(t, s.HasData())
	second := make([]byte, 64)
	n2, ok, err := s.Fill(second)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, first[:n1], second[:n2])

	require.NoError(t, s.Ack())
	require.False(t, s.HasData())
	stats, err := s.Stats()
	require.NoError(t, err)
	require.Empty(t, stats)
}

func TestCompressedRoundTrip(t *testing.T) {
	s := openMem(t, true)
	payload := bytes.Repeat([]byte("log line: sensor nominal\n"), 200)
	_, err := s.Enqueue(KindLog, payload)
	require.NoError(t, err)

	msgs, sizes := drain(t, s, 256)
	total := 0
	for _, n := range sizes {
		total += n
	}
	require.Less(t, total, len(payload))
	require.Len(t, msgs, 1)
	require.Equal(t, payload, msgs[0].Payload)
}

func TestCursorSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(Options{Path: dir})
	require.NoError(t, err)
	_, err = s.Enqueue(KindLog, []byte("first"))
	require.NoError(t, err)
	_, err = s.Enqueue(KindLog, []byte("second"))
	require.NoError(t, err)

	buf := make([]byte, 64)
	_, ok, err := s.Fill(buf)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, s.Ack())
	require.NoError(t, s.Close())

	s, err = Open(Options{Path: dir})
	require.NoError(t, err)
	defer s.Close()
	msgs, _ := drain(t, s, 64)
	require.Len(t, msgs, 1)
	require.Equal(t, []byte("second"), msgs[0].Payload)

	seq, err := s.Enqueue(KindLog, []byte("third"))
	require.NoError(t, err)
	require.Equal(t, uint64(3), seq)
}

func TestStatsAndClear(t *testing.T) {
	s := openMem(t, false)
	for _, p := range []string{"core-a", "core-b"} {
		_, err := s.Enqueue(KindCoredump, []byte(p))
		require.NoError(t, err)
	}
	_, err := s.Enqueue(KindLog, []byte("log"))
	require.NoError(t, err)

	stats, err := s.Stats()
	require.NoError(t, err)
	require.Equal(t, KindStats{Messages: 2, Bytes: 12}, stats[KindCoredump])
	require.Equal(t, KindStats{Messages: 1, Bytes: 3}, stats[KindLog])

	removed, err := s.Clear(KindCoredump)
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	msgs, _ := drain(t, s, 64)
	require.Len(t, msgs, 1)
	require.Equal(t, KindLog, msgs[0].Kind)
}

func TestEnqueueRejectsEmpty(t *testing.T) {
	s := openMem(t, false)
	_, err := s.Enqueue(KindLog, nil)
	require.ErrorIs(t, err, chunk.ErrInvalidArgument)
	_, err = s.Enqueue(0, []byte("x"))
	require.ErrorIs(t, err, chunk.ErrInvalidArgument)
}

func TestReassemblerRejectsOrphanContinuation(t *testing.T) {
	var r Reassembler
	_, err := r.Write([]byte{flagContinuation | byte(KindLog), 'x'})
	require.ErrorIs(t, err, ErrMalformedChunk)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("Coredump")
	require.NoError(t, err)
	require.Equal(t, KindCoredump, k)
	k, err = ParseKind("heartbeat")
	require.NoError(t, err)
	require.Equal(t, KindMetrics, k)
	_, err = ParseKind("firmware")
	require.Error(t, err)
}
