// Package staarchive implements the .sta Archive Codec (C7): a
// binary container combining a peekable metadata header with a
// compressed ZIP payload, per spec.md §6's exact byte layout.
package staarchive

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/savetrackerd/savetrackerd/internal/errs"
	"github.com/savetrackerd/savetrackerd/internal/pathcontract"
)

const (
	magic             = "STARCH"
	formatVersion     = uint16(1)
	headerSize        = 128
	magicSize         = 6
	versionOffset     = 6
	metadataSizeOff   = 8
	maxMetadataPeek   = 64 * 1024
	maxUnpackMetadata = 1 << 20 // 1 MiB, per spec's Unpack bound
	PeekReadByteSize  = headerSize + maxMetadataPeek // 65,664
)

// Duration is a time.Duration that marshals to and from the documented
// "HH:MM:SS" wire form instead of Go's default nanosecond count.
type Duration time.Duration

// MarshalJSON renders d as "HH:MM:SS", e.g. 90 minutes as "01:30:00".
func (d Duration) MarshalJSON() ([]byte, error) {
	total := int64(time.Duration(d) / time.Second)
	sign := ""
	if total < 0 {
		sign = "-"
		total = -total
	}
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	return []byte(fmt.Sprintf(`"%s%02d:%02d:%02d"`, sign, hours, minutes, seconds)), nil
}

// UnmarshalJSON parses the "HH:MM:SS" wire form back into a Duration.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return fmt.Errorf("invalid duration %q: want HH:MM:SS", s)
	}
	var hours, minutes, seconds int64
	if _, err := fmt.Sscanf(parts[0], "%d", &hours); err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if _, err := fmt.Sscanf(parts[1], "%d", &minutes); err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if _, err := fmt.Sscanf(parts[2], "%d", &seconds); err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	total := hours*3600 + minutes*60 + seconds
	if neg {
		total = -total
	}
	*d = Duration(total * int64(time.Second))
	return nil
}

// FileChecksumRecord is one entry of GameUploadData.Files.
type FileChecksumRecord struct {
	Path          string    `json:"Path"`
	Checksum      string    `json:"Checksum"`
	LastUpload    time.Time `json:"LastUpload"`
	FileSize      int64     `json:"FileSize"`
	LastWriteTime time.Time `json:"LastWriteTime"`
}

// GameUploadData is the manifest embedded in a .sta archive's header
// and mirrored by the local checksum manifest.
type GameUploadData struct {
	PlayTime       Duration                      `json:"PlayTime"`
	LastUpdated    time.Time                     `json:"LastUpdated"`
	DetectedPrefix string                        `json:"DetectedPrefix,omitempty"`
	Files          map[string]FileChecksumRecord `json:"Files"`
}

// PackResult reports the outcome of a successful pack.
type PackResult struct {
	OutputPath   string
	MetadataSize int64
	TotalSize    int64
	FileCount    int
}

// UnpackResult reports the outcome of a successful unpack.
type UnpackResult struct {
	Metadata      GameUploadData
	ExtractedPath []string
}

// Pack serializes metadata and files into a new .sta archive at
// outputPath. files are absolute paths; gameDir/prefix contract them
// into portable ZIP entry names per C6.
func Pack(outputPath string, files []string, gameDir string, metadata GameUploadData, prefix string) (*PackResult, error) {
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal archive metadata: %w", err)
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("create archive: %w", err)
	}
	defer out.Close()

	header := buildHeader(int64(len(metaJSON)))
	if _, err := out.Write(header); err != nil {
		return nil, fmt.Errorf("write archive header: %w", err)
	}
	if _, err := out.Write(metaJSON); err != nil {
		return nil, fmt.Errorf("write archive metadata: %w", err)
	}

	zw := zip.NewWriter(out)
	for _, abs := range files {
		if err := addZipEntry(zw, abs, gameDir, prefix); err != nil {
			zw.Close()
			return nil, fmt.Errorf("add archive entry %s: %w", abs, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize archive zip stream: %w", err)
	}

	info, err := out.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat archive: %w", err)
	}

	return &PackResult{
		OutputPath:   outputPath,
		MetadataSize: int64(len(metaJSON)),
		TotalSize:    info.Size(),
		FileCount:    len(files),
	}, nil
}

func addZipEntry(zw *zip.Writer, abs, gameDir, prefix string) error {
	info, err := os.Stat(abs)
	if err != nil {
		return err
	}
	name := pathcontract.Contract(abs, gameDir, prefix)

	fh, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	fh.Name = name
	fh.Method = zip.Deflate

	w, err := zw.CreateHeader(fh)
	if err != nil {
		return err
	}

	f, err := os.Open(abs)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(w, f)
	return err
}

func buildHeader(metadataSize int64) []byte {
	header := make([]byte, headerSize)
	copy(header[:magicSize], magic)
	binary.LittleEndian.PutUint16(header[versionOffset:], formatVersion)
	binary.LittleEndian.PutUint64(header[metadataSizeOff:], uint64(metadataSize))
	// remaining 112 bytes are already zero
	return header
}

// PeekMetadata reads exactly 128 header bytes from r, verifies the
// magic, then reads metadataSize bytes and deserializes them. It
// fails soft: any structural mismatch yields (nil, nil), never an
// error the caller must distinguish from "absent".
func PeekMetadata(r io.Reader) (*GameUploadData, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, nil
	}
	if string(header[:magicSize]) != magic {
		return nil, nil
	}
	metadataSize := int64(binary.LittleEndian.Uint64(header[metadataSizeOff:]))
	if metadataSize < 0 || metadataSize > maxMetadataPeek {
		return nil, nil
	}

	metaBytes := make([]byte, metadataSize)
	if _, err := io.ReadFull(r, metaBytes); err != nil {
		return nil, nil
	}

	var data GameUploadData
	if err := json.Unmarshal(metaBytes, &data); err != nil {
		return nil, nil
	}
	return &data, nil
}

// PeekMetadataBytes is a convenience wrapper over PeekMetadata for
// callers that already hold the peeked byte slice (e.g. from the
// Transfer Driver's bounded `cat --count` read).
func PeekMetadataBytes(buf []byte) (*GameUploadData, error) {
	return PeekMetadata(bytes.NewReader(buf))
}

// Unpack reverses Pack: reads the header and metadata, then extracts
// each ZIP entry to its portable-token name expanded against gameDir
// and, transitively, the metadata's DetectedPrefix. Only an entry that
// expands outside gameDir while no DetectedPrefix is recorded is
// written under destDir instead.
func Unpack(archivePath, destDir, gameDir string) (*UnpackResult, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat archive: %w", err)
	}

	header := make([]byte, headerSize)
	if _, err := io.ReadFull(f, header); err != nil || string(header[:magicSize]) != magic {
		return nil, errs.Wrap(errs.ErrArchiveMalformed, "read archive header %s", archivePath)
	}
	metadataSize := int64(binary.LittleEndian.Uint64(header[metadataSizeOff:]))
	if metadataSize < 0 || metadataSize > maxUnpackMetadata {
		return nil, errs.Wrap(errs.ErrArchiveMalformed, "metadata size %d out of bounds for %s", metadataSize, archivePath)
	}

	metaBytes := make([]byte, metadataSize)
	if _, err := io.ReadFull(f, metaBytes); err != nil {
		return nil, errs.Wrap(errs.ErrArchiveMalformed, "read archive metadata %s", archivePath)
	}
	var metadata GameUploadData
	if err := json.Unmarshal(metaBytes, &metadata); err != nil {
		return nil, errs.Wrap(errs.ErrArchiveMalformed, "parse archive metadata %s", archivePath)
	}

	zipStart := headerSize + metadataSize
	zr, err := zip.NewReader(io.NewSectionReader(f, zipStart, info.Size()-zipStart), info.Size()-zipStart)
	if err != nil {
		return nil, fmt.Errorf("open archive zip stream: %w", err)
	}

	var extracted []string
	for _, entry := range zr.File {
		abs := pathcontract.Expand(entry.Name, gameDir, metadata.DetectedPrefix)
		if !strings.HasPrefix(abs, gameDir) && metadata.DetectedPrefix == "" {
			abs = filepath.Join(destDir, filepath.FromSlash(entry.Name))
		}
		if err := extractEntry(entry, abs); err != nil {
			return nil, fmt.Errorf("extract %s: %w", entry.Name, err)
		}
		extracted = append(extracted, abs)
	}

	return &UnpackResult{Metadata: metadata, ExtractedPath: extracted}, nil
}

func extractEntry(entry *zip.File, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}
	rc, err := entry.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, entry.Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}

// ArchiveName returns the profile-qualified .sta filename: the
// default profile uses the conventional name, others are suffixed.
func ArchiveName(profileID string) string {
	if profileID == "" || profileID == "default" {
		return "default.sta"
	}
	return sanitizeForFilename(profileID) + ".sta"
}

func sanitizeForFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "_", `\`, "_", ":", "_", "*", "_", "?", "_",
		`"`, "_", "<", "_", ">", "_", "|", "_", " ", "_",
	)
	return replacer.Replace(name)
}
