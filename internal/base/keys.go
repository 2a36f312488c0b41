// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package base holds the sequence-number, internal-key and error-kind types
// shared by every layer of the storage engine.
package base

import "math"

// SequenceNumber is the process- and region-wide monotonically increasing
// counter allocated by the WAL on successful append (spec §3).
type SequenceNumber uint64

// MaxSequenceNumber is the largest representable sequence number. It is used
// both as the "read everything" snapshot and as the basis of the
// MAX-seq descending encoding used by the memtable key sequence.
const MaxSequenceNumber SequenceNumber = math.MaxUint64

// MinSequenceNumber is the smallest valid sequence number.
const MinSequenceNumber SequenceNumber = 0

// RowIndex disambiguates rows sharing a user key within the same write
// batch (spec §3 "Key sequence").
type RowIndex uint32

// KeySequenceByteLen is the fixed size of an encoded KeySequence: an 8-byte
// reversed sequence number followed by a 4-byte reversed row index.
const KeySequenceByteLen = 12

// TableID identifies a table within a space.
type TableID uint64

// ShardID identifies a shard: a set of tables recovered and closed as a
// unit, sharing one WAL region.
type ShardID uint64

// SpaceID groups tables under a schema id for quota purposes.
type SpaceID uint64
