package zmodem

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// FileInfo is the metadata carried in a ZFILE data subpacket, parsed from
// Forsberg's "name\0size mtime mode serial filesleft bytesleft type" text
// format.
type FileInfo struct {
	Name           string
	Size           int64
	ModTime        time.Time
	Mode           os.FileMode
	Serial         uint32
	FilesRemaining int
	BytesRemaining int64
	FileType       int
}

// ParseFileInfo parses the payload of a ZFILE data subpacket. Every field
// past the filename is optional and defaults to zero; mtime, mode, and
// serial are encoded in octal, matching rzfile()'s procheader() in the
// reference implementation.
func ParseFileInfo(data []byte) (FileInfo, error) {
	var info FileInfo

	nullPos := -1
	for i, b := range data {
		if b == 0 {
			nullPos = i
			break
		}
	}
	if nullPos < 0 {
		return info, NewError(ErrInvalidFrame, "file info missing null terminator")
	}
	info.Name = string(data[:nullPos])

	rest := data[nullPos+1:]
	for len(rest) > 0 && rest[len(rest)-1] == 0 {
		rest = rest[:len(rest)-1]
	}
	if len(rest) == 0 {
		return info, nil
	}

	fields := strings.Fields(string(rest))

	if len(fields) > 0 {
		if v, err := strconv.ParseInt(fields[0], 10, 64); err == nil {
			info.Size = v
		}
	}
	if len(fields) > 1 {
		if v, err := strconv.ParseInt(fields[1], 8, 64); err == nil && v > 0 {
			info.ModTime = time.Unix(v, 0)
		}
	}
	if len(fields) > 2 {
		if v, err := strconv.ParseUint(fields[2], 8, 32); err == nil {
			info.Mode = os.FileMode(v)
		}
	}
	if len(fields) > 3 {
		if v, err := strconv.ParseUint(fields[3], 8, 32); err == nil {
			info.Serial = uint32(v)
		}
	}
	if len(fields) > 4 {
		if v, err := strconv.Atoi(fields[4]); err == nil {
			info.FilesRemaining = v
		}
	}
	if len(fields) > 5 {
		if v, err := strconv.ParseInt(fields[5], 10, 64); err == nil {
			info.BytesRemaining = v
		}
	}
	if len(fields) > 6 {
		if v, err := strconv.Atoi(fields[6]); err == nil {
			info.FileType = v
		}
	}

	return info, nil
}

// MarshalFileInfo builds a ZFILE data subpacket payload for info, in the
// format ParseFileInfo reads. BytesRemaining and FileType are written only
// when FilesRemaining is positive (FileType only when non-zero), so they
// do not survive a round trip otherwise.
func MarshalFileInfo(info FileInfo) []byte {
	var meta strings.Builder
	fmt.Fprintf(&meta, "%d", info.Size)
	if !info.ModTime.IsZero() {
		fmt.Fprintf(&meta, " %o", info.ModTime.Unix())
	} else {
		meta.WriteString(" 0")
	}
	fmt.Fprintf(&meta, " %o", uint32(info.Mode))
	fmt.Fprintf(&meta, " %o", info.Serial)
	if info.FilesRemaining > 0 {
		fmt.Fprintf(&meta, " %d", info.FilesRemaining)
		fmt.Fprintf(&meta, " %d", info.BytesRemaining)
		if info.FileType != 0 {
			fmt.Fprintf(&meta, " %d", info.FileType)
		}
	}

	out := make([]byte, 0, len(info.Name)+1+meta.Len()+1)
	out = append(out, []byte(info.Name)...)
	out = append(out, 0)
	out = append(out, []byte(meta.String())...)
	out = append(out, 0)
	return out
}

// SanitizeFilename strips any directory components a hostile sender might
// have embedded in a ZFILE name, so the receiver never writes outside the
// target directory.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	return filepath.Base(name)
}
