// Copyright Consensys Software Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with
// the License. You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on
// an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the License for the
// specific language governing permissions and limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0
package compiler

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"

	"github.com/pkg/errors"
)

// KERNELBUNDLE is the file identifier for serialised kernel bundles.  This
// just helps distinguish actual bundles from corrupted files.
var KERNELBUNDLE = [8]byte{'t', 's', 'k', 'b', 'u', 'n', 'd', 'l'}

// BUNDLE_MAJOR_VERSION gives the major version of the bundle format.  Bundles
// of a different major version are rejected outright.
const BUNDLE_MAJOR_VERSION uint16 = 1

// BUNDLE_MINOR_VERSION gives the minor version of the bundle format.  Older
// minor versions remain readable by newer ones.
const BUNDLE_MINOR_VERSION uint16 = 0

// encodeBundle serialises a set of kernel records into the bundle format: the
// 8-byte identifier, the format version and a GOB encoding of the records.
func encodeBundle(kernels []KernelInfo) ([]byte, error) {
	var (
		buffer       bytes.Buffer
		versionBytes [4]byte
	)
	//
	binary.BigEndian.PutUint16(versionBytes[:2], BUNDLE_MAJOR_VERSION)
	binary.BigEndian.PutUint16(versionBytes[2:], BUNDLE_MINOR_VERSION)
	//
	buffer.Write(KERNELBUNDLE[:])
	buffer.Write(versionBytes[:])
	//
	if err := gob.NewEncoder(&buffer).Encode(kernels); err != nil {
		return nil, errors.Wrap(err, "encoding kernel bundle")
	}
	//
	return buffer.Bytes(), nil
}

// decodeBundle deserialises a kernel bundle previously produced by
// encodeBundle.  This should match exactly the encoding above.
func decodeBundle(data []byte) ([]KernelInfo, error) {
	var (
		identifier   [8]byte
		versionBytes [4]byte
		buffer       = bytes.NewBuffer(data)
	)
	//
	if n, err := buffer.Read(identifier[:]); err != nil || n != len(identifier) {
		return nil, errors.New("malformed kernel bundle")
	}
	//
	if identifier != KERNELBUNDLE {
		return nil, errors.New("not a kernel bundle")
	}
	//
	if n, err := buffer.Read(versionBytes[:]); err != nil || n != len(versionBytes) {
		return nil, errors.New("malformed kernel bundle")
	}
	//
	var (
		major = binary.BigEndian.Uint16(versionBytes[:2])
		minor = binary.BigEndian.Uint16(versionBytes[2:])
	)
	//
	if major != BUNDLE_MAJOR_VERSION || minor > BUNDLE_MINOR_VERSION {
		return nil, errors.Errorf("incompatible kernel bundle (was v%d.%d, expected v%d.%d)",
			major, minor, BUNDLE_MAJOR_VERSION, BUNDLE_MINOR_VERSION)
	}
	//
	var kernels []KernelInfo
	//
	if err := gob.NewDecoder(buffer).Decode(&kernels); err != nil {
		return nil, errors.Wrap(err, "decoding kernel bundle")
	}
	//
	return kernels, nil
}
