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

// Package report frames an access report as a length-prefixed,
// pipe-delimited text record and writes it to the reports pipe in a
// single atomic write(2).
package report

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/buildxl-oss/linux-sandbox-observer/domain"
)

// lengthPrefixSize is the width, in bytes, of the little-endian record
// length prefix sent ahead of every text record.
const lengthPrefixSize = 4

// Sender writes framed access reports to a reports pipe, opening it fresh
// on every send rather than keeping a descriptor around: the pipe may be
// recreated between sends, and a stale fd would silently write into
// nowhere.
type Sender struct {
	path     string
	progName string
}

// NewSender returns a Sender targeting path, the reports pipe/FIFO, and
// stamping every record with progName (the observed program's name).
func NewSender(path, progName string) *Sender {
	return &Sender{path: path, progName: progName}
}

// Frame builds the wire record for one access report: a little-endian
// uint32 byte count followed by a pipe-delimited text line.
//
//	progname|pid|requested_access|status|report_explicit|errno|operation|path\n
//
// Returns an error if the record (including its prefix) would reach
// domain.PipeBuf, since a partial write would not be atomic. The bound is
// strict (>=, not >): the original reserves one byte for its snprintf NUL
// terminator, so its text portion tops out at PipeBuf-lengthPrefixSize-1.
func Frame(progName string, pid uint32, r domain.AccessReport) ([]byte, error) {
	line := fmt.Sprintf("%s|%d|%d|%d|%d|%d|%s|%s\n",
		progName, pid, r.RequestedAccess, r.Status, boolToInt(r.ReportExplicitly), r.Errno, r.Operation, r.Path)

	total := lengthPrefixSize + len(line)
	if total >= domain.PipeBuf {
		return nil, fmt.Errorf("report for %q does not fit in PIPE_BUF (%d): record is %d bytes", r.Path, domain.PipeBuf, total)
	}

	buf := make([]byte, total)
	binary.LittleEndian.PutUint32(buf, uint32(len(line)))
	copy(buf[lengthPrefixSize:], line)

	return buf, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Send writes buf to the reports pipe in a single write(2) call. buf must
// already fit within PIPE_BUF; Frame guarantees that for records it
// builds.
func (s *Sender) Send(buf []byte) error {
	fd, err := unix.Open(s.path, unix.O_WRONLY|unix.O_APPEND, 0)
	if err != nil {
		return fmt.Errorf("could not open reports path %q: %w", s.path, err)
	}
	defer unix.Close(fd)

	n, err := unix.Write(fd, buf)
	if err != nil {
		return fmt.Errorf("write to reports path %q failed: %w", s.path, err)
	}
	if n < len(buf) {
		return fmt.Errorf("wrote only %d bytes out of %d to %q", n, len(buf), s.path)
	}

	return nil
}

// SendReport frames and sends one access report, logging the outgoing
// line at debug level.
func (s *Sender) SendReport(pid uint32, r domain.AccessReport) error {
	buf, err := Frame(s.progName, pid, r)
	if err != nil {
		return err
	}

	logrus.Debugf("sending report: %s", buf[lengthPrefixSize:])

	return s.Send(buf)
}

// SendExec reports an exec event as two consecutive records: the literal
// command name first (unresolved, so a process name is always reported
// before anything else about it), then the canonicalized executable path.
func (s *Sender) SendExec(pid uint32, procName, resolvedPath string) error {
	if err := s.SendReport(pid, domain.AccessReport{
		Operation: domain.EventExec,
		Path:      procName,
	}); err != nil {
		return err
	}

	return s.SendReport(pid, domain.AccessReport{
		Operation: domain.EventExec,
		Path:      resolvedPath,
	})
}

// Pid returns the calling process' id, used by callers that stamp reports
// with the pid of the process issuing the syscall rather than a tracked
// process record.
func Pid() uint32 {
	return uint32(os.Getpid())
}
