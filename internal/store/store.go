package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
	"github.com/tanq16/chunkrelay/internal/chunk"
	"github.com/tanq16/chunkrelay/internal/utils"
)

var (
	msgPrefix = []byte("msg/")
	cursorKey = []byte("meta/cursor")
)

type Options struct {
	Path     string
	InMemory bool
	// Compress stores payloads lz4-compressed when that makes them smaller.
	Compress bool
}

type cursor struct {
	Seq    uint64
	Offset int
}

// Store is the on-device diagnostic queue. It is a chunk.Source: Fill reads
// from a staged cursor that Ack persists and Rewind discards.
type Store struct {
	db       *badger.DB
	compress bool
	log      zerolog.Logger

	mu        sync.Mutex
	nextSeq   uint64
	committed cursor
	staged    *cursor
}

type KindStats struct {
	Messages int
	Bytes    int64
}

func Open(opts Options) (*Store, error) {
	bopts := badger.DefaultOptions(opts.Path).WithLogger(nil)
	if opts.InMemory {
		bopts = bopts.WithInMemory(true)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open queue: %w", err)
	}
	s := &Store{db: db, compress: opts.Compress, log: utils.GetLogger("store"), nextSeq: 1}
	if err := s.load(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func msgKey(seq uint64) []byte {
	key := make([]byte, len(msgPrefix)+8)
	copy(key, msgPrefix)
	binary.BigEndian.PutUint64(key[len(msgPrefix):], seq)
	return key
}

func seqFromKey(key []byte) uint64 {
	return binary.BigEndian.Uint64(key[len(msgPrefix):])
}

func (s *Store) load() error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cursorKey)
		if err == nil {
			err = item.Value(func(val []byte) error {
				if len(val) != 16 {
					return fmt.Errorf("corrupt cursor record (%d bytes)", len(val))
				}
				s.committed.Seq = binary.BigEndian.Uint64(val[:8])
				s.committed.Offset = int(binary.BigEndian.Uint64(val[8:]))
				return nil
			})
			if err != nil {
				return err
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		it.Seek(msgKey(^uint64(0)))
		if it.ValidForPrefix(msgPrefix) {
			s.nextSeq = seqFromKey(it.Item().Key()) + 1
		}
		if s.committed.Seq >= s.nextSeq {
			s.nextSeq = s.committed.Seq + 1
		}
		return nil
	})
}

// Enqueue appends a captured diagnostic payload.
func (s *Store) Enqueue(kind Kind, payload []byte) (uint64, error) {
	if len(payload) == 0 || kind == 0 || kind > kindMask {
		return 0, chunk.ErrInvalidArgument
	}
	header := byte(kind)
	body := payload
	if s.compress {
		packed, err := compress(payload)
		if err != nil {
			return 0, err
		}
		if len(packed) < len(payload) {
			header |= flagLZ4
			body = packed
		}
	}
	record := make([]byte, 0, len(body)+1)
	record = append(record, header)
	record = append(record, body...)

	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.nextSeq
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(msgKey(seq), record)
	}); err != nil {
		return 0, chunk.NewTransportError("store/enqueue", 0, err)
	}
	s.nextSeq++
	s.log.Debug().Str("op", "store/enqueue").Uint64("seq", seq).Str("kind", kind.String()).Int("size", len(payload)).Bool("lz4", header&flagLZ4 != 0).Msg("message queued")
	return seq, nil
}

func (s *Store) readCursor() cursor {
	if s.staged != nil {
		return *s.staged
	}
	return s.committed
}

// next finds the first message at or after c.Seq.
func (s *Store) next(c cursor) (uint64, []byte, error) {
	var seq uint64
	var record []byte
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		it.Seek(msgKey(c.Seq))
		if !it.ValidForPrefix(msgPrefix) {
			return chunk.ErrNoDataAvailable
		}
		seq = seqFromKey(it.Item().Key())
		var err error
		record, err = it.Item().ValueCopy(nil)
		return err
	})
	return seq, record, err
}

func (s *Store) HasData() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _, err := s.next(s.readCursor())
	return err == nil
}

// Fill packs the next slice of the queue into buf.
func (s *Store) Fill(buf []byte) (int, bool, error) {
	if len(buf) == 0 {
		return 0, false, chunk.ErrInvalidArgument
	}
	if len(buf) < MinChunkSize {
		return 0, false, fmt.Errorf("%w: chunk capacity %d below %d", chunk.ErrInvalidArgument, len(buf), MinChunkSize)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.readCursor()
	seq, record, err := s.next(c)
	if errors.Is(err, chunk.ErrNoDataAvailable) {
		return 0, false, nil
	}
	if err != nil {
		s.log.Error().Str("op", "store/fill").Err(err).Msg("queue read failed")
		return 0, false, nil
	}
	if seq != c.Seq {
		// message under the cursor was cleared
		c = cursor{Seq: seq}
	}
	header, payload := record[0], record[1:]
	if c.Offset >= len(payload) {
		c = cursor{Seq: seq}
	}

	n := 1
	if c.Offset > 0 {
		header |= flagContinuation
	} else {
		n += binary.PutUvarint(buf[1:], uint64(len(payload)))
	}
	copied := copy(buf[n:], payload[c.Offset:])
	n += copied
	end := c.Offset + copied
	if end < len(payload) {
		header |= flagMore
		c.Offset = end
	} else {
		c = cursor{Seq: seq + 1}
	}
	buf[0] = header
	s.staged = &c
	return n, true, nil
}

// Ack persists every fill since the last Ack or Rewind and drops fully sent messages.
func (s *Store) Ack() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.staged == nil {
		return nil
	}
	c := *s.staged
	val := make([]byte, 16)
	binary.BigEndian.PutUint64(val[:8], c.Seq)
	binary.BigEndian.PutUint64(val[8:], uint64(c.Offset))
	err := s.db.Update(func(txn *badger.Txn) error {
		var sent [][]byte
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: false})
		for it.Seek(msgKey(s.committed.Seq)); it.ValidForPrefix(msgPrefix); it.Next() {
			if seqFromKey(it.Item().Key()) >= c.Seq {
				break
			}
			sent = append(sent, it.Item().KeyCopy(nil))
		}
		it.Close()
		for _, k := range sent {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return txn.Set(cursorKey, val)
	})
	if err != nil {
		return chunk.NewTransportError("store/ack", 0, err)
	}
	s.committed = c
	s.staged = nil
	return nil
}

func (s *Store) Rewind() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.staged != nil {
		s.log.Debug().Str("op", "store/rewind").Uint64("seq", s.committed.Seq).Int("offset", s.committed.Offset).Msg("dropping unacknowledged fills")
	}
	s.staged = nil
}

// Stats reports queued messages per kind, counting bytes not yet acknowledged.
func (s *Store) Stats() (map[Kind]KindStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := make(map[Kind]KindStats)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(msgKey(s.committed.Seq)); it.ValidForPrefix(msgPrefix); it.Next() {
			item := it.Item()
			seq := seqFromKey(item.Key())
			err := item.Value(func(val []byte) error {
				if len(val) < 1 {
					return nil
				}
				size := int64(len(val) - 1)
				if seq == s.committed.Seq {
					size -= int64(s.committed.Offset)
				}
				k := Kind(val[0] & kindMask)
				st := stats[k]
				st.Messages++
				st.Bytes += size
				stats[k] = st
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return stats, err
}

// Clear drops queued messages of kind, or all of them when kind is 0.
func (s *Store) Clear(kind Kind) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(msgPrefix); it.ValidForPrefix(msgPrefix); it.Next() {
			item := it.Item()
			match := kind == 0
			if !match {
				err := item.Value(func(val []byte) error {
					match = len(val) > 0 && Kind(val[0]&kindMask) == kind
					return nil
				})
				if err != nil {
					return err
				}
			}
			if match {
				keys = append(keys, item.KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.staged = nil
	scope := "all"
	if kind != 0 {
		scope = kind.String()
	}
	s.log.Info().Str("op", "store/clear").Str("kind", scope).Int("removed", len(keys)).Msg("queue cleared")
	return len(keys), nil
}
