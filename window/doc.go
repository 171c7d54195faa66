// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package window provides the bounded lookback buffer used when sweeping a
// coordinate-sorted record stream.  A Window verifies that records arrive in
// chromosome/position order, tracks quality-filter statistics, and holds the
// records that may still overlap upcoming input until the caller evicts them.
//
// A Window is owned by a single sweep driver; it is not safe for concurrent
// use.
package window
