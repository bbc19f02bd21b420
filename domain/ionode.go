//
// Copyright 2019-2020 Nestybox, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package domain

import "os"

type Inode = uint64 // 0 = invalid inode

//
// IOnodeIface serves as an abstract-class to represent the I/O resources
// this observer reads. All I/O transactions are carried out through the
// methods exposed by this interface. Its one implementation, sysio's
// IOnodeFile, is backed by one of two service types:
//
// 1. IOOsFileService: interactions with the host FS. To be utilized in
//    production scenarios.
//
// 2. IOMemFileService: an in-memory afero FS, utilized for unit testing.
//

type IOServiceType = int

const (
	Unknown          IOServiceType = iota
	IOOsFileService                // production / regular purposes
	IOMemFileService               // unit-testing purposes
)

type IOServiceIface interface {
	NewIOnode(n string, p string, attr os.FileMode) IOnodeIface
	GetServiceType() IOServiceType
}

type IOnodeIface interface {
	Open() error
	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)
	Close() error
	ReadFile() ([]byte, error)
	WriteFile(p []byte) error
	Stat() (os.FileInfo, error)

	// Readlink resolves a symlink via a raw syscall, bypassing the observed
	// program's (possibly interposed) libc wrapper.
	Readlink() (string, error)

	//
	// Required getters/setters.
	//
	Name() string
	Path() string
	OpenFlags() int
	OpenMode() os.FileMode
	SetPath(s string)
	SetOpenFlags(flags int)
	SetOpenMode(mode os.FileMode)
}
