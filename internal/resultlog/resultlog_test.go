package resultlog

import (
	"encoding/csv"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvmarrod/web-weaver/internal/addrspace"
	"github.com/alvmarrod/web-weaver/internal/storage"
)

func readAll(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func TestWriter_HeaderAndAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.csv")
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	w, err := Create(path, false)
	require.NoError(t, err)
	require.NoError(t, w.Write(Row{IP: "10.0.0.1", Hostname: "one.example", Found: true, Latency: 12 * time.Millisecond, Timestamp: ts}))
	require.NoError(t, w.Close())

	// reopening must not repeat the header
	w, err = Create(path, false)
	require.NoError(t, err)
	require.NoError(t, w.Write(Row{IP: "10.0.0.2", Timestamp: ts}))
	assert.Equal(t, uint64(1), w.Rows())
	require.NoError(t, w.Close())

	records := readAll(t, path)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"ip", "hostname", "found", "latency_ms", "timestamp"}, records[0])
	assert.Equal(t, []string{"10.0.0.1", "one.example", "true", "12", "2024-05-01T12:00:00Z"}, records[1])
	assert.Equal(t, []string{"10.0.0.2", "", "false", "0", "2024-05-01T12:00:00Z"}, records[2])
}

func TestWriter_MetadataColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.csv")
	title := "Multi\nline, \"quoted\" title"
	ct := "text/html"

	w, err := Create(path, true)
	require.NoError(t, err)
	require.NoError(t, w.Write(Row{
		IP: "10.0.0.1", Hostname: "one.example", Found: true, Timestamp: time.Now(),
		Metadata: &storage.SiteMetadata{Title: &title, ContentType: &ct, HTTPStatus: 200, SizeBytes: 42, FinalURL: "http://one.example/"},
	}))
	require.NoError(t, w.Write(Row{IP: "10.0.0.2", Timestamp: time.Now()}))
	require.NoError(t, w.Close())

	records := readAll(t, path)
	require.Len(t, records, 3)
	assert.Equal(t, Header(true), records[0])
	assert.Len(t, records[1], 13)
	assert.Equal(t, "200", records[1][5])
	assert.Equal(t, "text/html", records[1][6])
	assert.Equal(t, "42", records[1][7])
	assert.Equal(t, "Multi line, \"quoted\" title", records[1][9])
	assert.Len(t, records[2], 13)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(data), "\n"))
}

func TestLastAddress(t *testing.T) {
	dir := t.TempDir()

	t.Run("returns the last row", func(tt *testing.T) {
		path := filepath.Join(dir, "last.csv")
		w, err := Create(path, true)
		require.NoError(tt, err)
		for i := uint32(0); i < 2000; i++ {
			require.NoError(tt, w.Write(Row{IP: addrspace.FormatAddr(0x0a000000 + i), Timestamp: time.Now()}))
		}
		require.NoError(tt, w.Close())

		addr, err := LastAddress(path)
		require.NoError(tt, err)
		assert.Equal(tt, "10.0.7.207", addrspace.FormatAddr(addr))
	})

	t.Run("header only is empty", func(tt *testing.T) {
		path := filepath.Join(dir, "header.csv")
		w, err := Create(path, false)
		require.NoError(tt, err)
		require.NoError(tt, w.Close())

		_, err = LastAddress(path)
		assert.ErrorIs(tt, err, ErrEmptyLog)
	})

	t.Run("empty file is empty", func(tt *testing.T) {
		path := filepath.Join(dir, "empty.csv")
		require.NoError(tt, os.WriteFile(path, nil, 0644))

		_, err := LastAddress(path)
		assert.ErrorIs(tt, err, ErrEmptyLog)
	})

	t.Run("trailing blank lines are skipped", func(tt *testing.T) {
		path := filepath.Join(dir, "blank.csv")
		require.NoError(tt, os.WriteFile(path, []byte("ip,hostname\r\n192.168.1.9,host\r\n\r\n\n"), 0644))

		addr, err := LastAddress(path)
		require.NoError(tt, err)
		assert.Equal(tt, "192.168.1.9", addrspace.FormatAddr(addr))
	})

	t.Run("row cut short by a crash is skipped", func(tt *testing.T) {
		path := filepath.Join(dir, "partial.csv")
		require.NoError(tt, os.WriteFile(path, []byte("ip,hostname\n10.0.0.11,a\n10.0.0.12,b\n10.0.0.1"), 0644))

		addr, err := LastAddress(path)
		require.NoError(tt, err)
		assert.Equal(tt, "10.0.0.12", addrspace.FormatAddr(addr))
	})

	t.Run("partial first row is empty", func(tt *testing.T) {
		path := filepath.Join(dir, "partial-first.csv")
		require.NoError(tt, os.WriteFile(path, []byte("ip,hostname\n10.0.0"), 0644))

		_, err := LastAddress(path)
		assert.ErrorIs(tt, err, ErrEmptyLog)
	})

	t.Run("malformed address", func(tt *testing.T) {
		path := filepath.Join(dir, "bad.csv")
		require.NoError(tt, os.WriteFile(path, []byte("ip\nnot-an-ip\n"), 0644))

		_, err := LastAddress(path)
		assert.ErrorIs(tt, err, addrspace.ErrInvalidRange)
	})

	t.Run("missing file", func(tt *testing.T) {
		_, err := LastAddress(filepath.Join(dir, "nope.csv"))
		assert.True(tt, errors.Is(err, fs.ErrNotExist))
	})
}

func TestCreate_DropsPartialRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resume.csv")
	require.NoError(t, os.WriteFile(path, []byte("ip,hostname,found,latency_ms,timestamp\n10.0.0.1,,false,3,2024-01-01T00:00:00Z\n10.0.0.2,ho"), 0644))

	w, err := Create(path, false)
	require.NoError(t, err)
	require.NoError(t, w.Write(Row{IP: "10.0.0.2", Timestamp: time.Now()}))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[2], "10.0.0.2,,false,"))

	addr, err := LastAddress(path)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2", addrspace.FormatAddr(addr))
}
