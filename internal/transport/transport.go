// Package transport wraps the external archiver and transport agent
// behind a small capability interface, so the planner never spawns a
// subprocess directly. The two streaming operations pipe the archiver
// and the transport agent together in memory, with goroutines draining
// each subprocess's stderr so neither side can deadlock on a full pipe.
package transport

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"runtime"
	"sort"

	"github.com/adrien1018/metarclone/internal/fsutil"
	"github.com/adrien1018/metarclone/internal/mlog"
)

const bufSize = 256 * 1024

// Options carries the subset of sync configuration that affects how
// commands are invoked: executable paths, extra rclone arguments,
// compression program, chunk-size floor, and dry-run mode.
type Options struct {
	TarCommand        string
	RcloneCommand     string
	RcloneArgs        []string
	Compression       string
	S3MinChunkSizeKiB uint64
	DryRun            bool
}

// Transport is the capability contract the planner depends on.
type Transport interface {
	// PackAndUpload streams a packed archive built from paths (taken
	// literally, no recursion) rooted at baseDir to dest. suggestedSize,
	// if nonzero, may trigger a chunk-size escalation. It returns bytes
	// transferred and ok=false on failure.
	PackAndUpload(baseDir string, paths []string, dest string, suggestedSize uint64) (bytesTransferred uint64, ok bool)
	// DownloadAndUnpack streams src and unpacks it into destDir.
	DownloadAndUnpack(src, destDir string) (bytesTransferred uint64, ok bool)
	// PutRaw uploads a small blob in one shot.
	PutRaw(uri string, data []byte) bool
	// GetRaw downloads a small blob in one shot; ok is false if absent.
	GetRaw(uri string) ([]byte, bool)
	// Delete removes a single object, or a prefix tree if isDir.
	Delete(uri string, isDir bool) bool
}

// RcloneTransport is the concrete Transport backed by an external
// archiver (tar-compatible) piped to/from rclone subprocesses.
type RcloneTransport struct {
	Options Options
	Log     *mlog.Logger
}

// New returns an RcloneTransport using opts and log for diagnostics.
func New(opts Options, log *mlog.Logger) *RcloneTransport {
	return &RcloneTransport{Options: opts, Log: log}
}

func (t *RcloneTransport) tarArgs() []string {
	var args []string
	if t.Options.Compression != "" && t.Options.Compression != "none" {
		args = append(args, "-I", t.Options.Compression)
	}
	return args
}

// chunkArg computes the --s3-chunk-size argument, if any: above 6000
// blocks at the configured floor, raise the chunk size to keep the
// object under 10000 S3 parts; otherwise honour a floor above the 5 MiB
// default.
func (t *RcloneTransport) chunkArg(suggestedSize uint64) string {
	floor := t.Options.S3MinChunkSizeKiB
	threshold := uint64(6000) * floor * 1024
	if suggestedSize > threshold {
		blockSizeKiB := floor
		if computed := uint64(math.Ceil(float64(suggestedSize) / (6000 * 1024))); computed > blockSizeKiB {
			blockSizeKiB = computed
		}
		return fmt.Sprintf("--s3-chunk-size=%dKi", blockSizeKiB)
	}
	if floor > 5*1024 {
		return fmt.Sprintf("--s3-chunk-size=%dKi", floor)
	}
	return ""
}

func (t *RcloneTransport) rcloneArgs(sub string, chunk string, extra ...string) []string {
	args := []string{sub}
	if chunk != "" {
		args = append(args, chunk)
	}
	args = append(args, t.Options.RcloneArgs...)
	args = append(args, extra...)
	return args
}

// drainStderr copies r through a mlog.LineWriter, logging each complete
// line as it arrives and also accumulating everything written for the
// caller to fold into a failure message. Without this auxiliary reader,
// a full stderr pipe would make the subprocess block and deadlock the
// main data-copy loop.
func drainStderr(log *mlog.Logger, label string, r io.Reader) <-chan []byte {
	out := make(chan []byte, 1)
	go func() {
		var captured bytes.Buffer
		lw := mlog.NewLineWriter(func(line string) {
			captured.WriteString(line)
			captured.WriteByte('\n')
			log.Debug(2, "%s: %s", label, line)
		})
		io.Copy(lw, r)
		lw.Flush()
		out <- captured.Bytes()
	}()
	return out
}

func toArchivePath(p string) string {
	if runtime.GOOS == "windows" {
		return fsutil.WinToPosix(p)
	}
	return p
}

// PackAndUpload implements Transport.PackAndUpload by piping an archiver
// process's stdout directly into an rclone rcat process's stdin,
// draining both stderr streams concurrently.
func (t *RcloneTransport) PackAndUpload(baseDir string, paths []string, dest string, suggestedSize uint64) (uint64, bool) {
	if t.Options.DryRun {
		return 0, true
	}

	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	listFile, err := os.CreateTemp("", "metarclone-tarlist-*")
	if err != nil {
		t.Log.Warning("unable to create archiver path list: %v", err)
		return 0, false
	}
	defer os.Remove(listFile.Name())
	for _, p := range sorted {
		listFile.WriteString(toArchivePath(p))
		listFile.Write([]byte{0})
	}
	if err := listFile.Close(); err != nil {
		t.Log.Warning("unable to write archiver path list: %v", err)
		return 0, false
	}

	tarArgs := append([]string{}, t.tarArgs()...)
	tarArgs = append(tarArgs, "--null", "--ignore-failed-read", "--no-recursion", "-H", "posix", "--acls",
		"-C", baseDir, "-T", listFile.Name(), "-Scf", "-")
	tarCmd := exec.Command(t.Options.TarCommand, tarArgs...)

	chunk := t.chunkArg(suggestedSize)
	rcloneCmd := exec.Command(t.Options.RcloneCommand, t.rcloneArgs("rcat", chunk, dest)...)

	tarStdout, err := tarCmd.StdoutPipe()
	if err != nil {
		t.Log.Warning("unable to pipe archiver output: %v", err)
		return 0, false
	}
	tarStderr, err := tarCmd.StderrPipe()
	if err != nil {
		t.Log.Warning("unable to pipe archiver stderr: %v", err)
		return 0, false
	}
	rcloneStdin, err := rcloneCmd.StdinPipe()
	if err != nil {
		t.Log.Warning("unable to pipe transport input: %v", err)
		return 0, false
	}
	rcloneStderr, err := rcloneCmd.StderrPipe()
	if err != nil {
		t.Log.Warning("unable to pipe transport stderr: %v", err)
		return 0, false
	}

	if err := tarCmd.Start(); err != nil {
		t.Log.Warning("unable to start archiver: %v", err)
		return 0, false
	}
	if err := rcloneCmd.Start(); err != nil {
		t.Log.Warning("unable to start transport agent: %v", err)
		return 0, false
	}

	tarErrCh := drainStderr(t.Log, "tar", tarStderr)
	rcloneErrCh := drainStderr(t.Log, "rclone", rcloneStderr)

	buf := make([]byte, bufSize)
	n, _ := io.CopyBuffer(rcloneStdin, tarStdout, buf)
	rcloneStdin.Close()

	tarErr := <-tarErrCh
	rcloneErr := <-rcloneErrCh

	tarStatus := tarCmd.Wait()
	rcloneStatus := rcloneCmd.Wait()

	if rcloneStatus != nil {
		t.Log.Warning("rclone rcat failed: %v: %s", rcloneStatus, bytes.TrimSpace(rcloneErr))
		return 0, false
	}
	if tarStatus != nil {
		t.Log.Warning("tar failed: %v: %s", tarStatus, bytes.TrimSpace(tarErr))
		return 0, false
	}

	return uint64(n), true
}

// DownloadAndUnpack implements Transport.DownloadAndUnpack by piping an
// rclone cat process's stdout into an archiver process's stdin.
func (t *RcloneTransport) DownloadAndUnpack(src, destDir string) (uint64, bool) {
	if t.Options.DryRun {
		return 0, true
	}

	rcloneCmd := exec.Command(t.Options.RcloneCommand, t.rcloneArgs("cat", "", src)...)
	tarArgs := append([]string{}, t.tarArgs()...)
	tarArgs = append(tarArgs, "-C", toArchivePath(destDir), "-Sxf", "-")
	tarCmd := exec.Command(t.Options.TarCommand, tarArgs...)

	rcloneStdout, err := rcloneCmd.StdoutPipe()
	if err != nil {
		t.Log.Warning("unable to pipe transport output: %v", err)
		return 0, false
	}
	rcloneStderr, err := rcloneCmd.StderrPipe()
	if err != nil {
		t.Log.Warning("unable to pipe transport stderr: %v", err)
		return 0, false
	}
	tarStdin, err := tarCmd.StdinPipe()
	if err != nil {
		t.Log.Warning("unable to pipe archiver input: %v", err)
		return 0, false
	}
	tarStderr, err := tarCmd.StderrPipe()
	if err != nil {
		t.Log.Warning("unable to pipe archiver stderr: %v", err)
		return 0, false
	}

	if err := rcloneCmd.Start(); err != nil {
		t.Log.Warning("unable to start transport agent: %v", err)
		return 0, false
	}
	if err := tarCmd.Start(); err != nil {
		t.Log.Warning("unable to start archiver: %v", err)
		return 0, false
	}

	rcloneErrCh := drainStderr(t.Log, "rclone", rcloneStderr)
	tarErrCh := drainStderr(t.Log, "tar", tarStderr)

	buf := make([]byte, bufSize)
	n, _ := io.CopyBuffer(tarStdin, rcloneStdout, buf)
	tarStdin.Close()

	rcloneErr := <-rcloneErrCh
	tarErr := <-tarErrCh

	tarStatus := tarCmd.Wait()
	rcloneStatus := rcloneCmd.Wait()

	if rcloneStatus != nil {
		t.Log.Warning("rclone cat failed: %v: %s", rcloneStatus, bytes.TrimSpace(rcloneErr))
		return 0, false
	}
	if tarStatus != nil {
		t.Log.Warning("tar failed: %v: %s", tarStatus, bytes.TrimSpace(tarErr))
		return 0, false
	}

	return uint64(n), true
}

// PutRaw implements Transport.PutRaw via a single rclone rcat
// invocation with data on stdin.
func (t *RcloneTransport) PutRaw(uri string, data []byte) bool {
	if t.Options.DryRun {
		return true
	}
	cmd := exec.Command(t.Options.RcloneCommand, t.rcloneArgs("rcat", "", uri)...)
	cmd.Stdin = bytes.NewReader(data)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		t.Log.Warning("rclone rcat failed: %v: %s", err, bytes.TrimSpace(stderr.Bytes()))
		return false
	}
	return true
}

// GetRaw implements Transport.GetRaw via a single rclone cat
// invocation. It always runs, even in dry-run mode, since metadata must
// still be readable to plan a dry run.
func (t *RcloneTransport) GetRaw(uri string) ([]byte, bool) {
	cmd := exec.Command(t.Options.RcloneCommand, t.rcloneArgs("cat", "", uri)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		t.Log.Warning("rclone cat failed: %v: %s", err, bytes.TrimSpace(stderr.Bytes()))
		return nil, false
	}
	return stdout.Bytes(), true
}

// Delete implements Transport.Delete via rclone purge (directories) or
// delete (single objects).
func (t *RcloneTransport) Delete(uri string, isDir bool) bool {
	if t.Options.DryRun {
		return true
	}
	sub := "delete"
	if isDir {
		sub = "purge"
	}
	cmd := exec.Command(t.Options.RcloneCommand, t.rcloneArgs(sub, "", uri)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		t.Log.Warning("rclone %s failed: %v: %s", sub, err, bytes.TrimSpace(stderr.Bytes()))
		return false
	}
	return true
}

var _ Transport = (*RcloneTransport)(nil)
