// SPDX-License-Identifier: ISC
// Copyright (c) 2018-2020 Quillchain Developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package blockdigest - the content-derived identity of a block
//
// a SHA3-256 digest over the raw block bytes
package blockdigest
