// Package acquirer turns a video reference into a local audio file.
package acquirer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"video-docs-go/internal/logger"
	"video-docs-go/internal/types"
)

// ErrToolNotFound is returned when no yt-dlp binary can be located.
var ErrToolNotFound = errors.New("yt-dlp not found")

// AudioAcquirer fetches the audio for sourceRef and returns a local file path.
// The caller owns the file.
type AudioAcquirer interface {
	Acquire(ctx context.Context, sourceRef string) (string, error)
}

type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

type execRunner struct{}

func (r *execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}
	return result, nil
}

type YtDlpConfig struct {
	// Path is tried first when set.
	Path string `yaml:"path"`
	// Candidates are tried after PATH lookup.
	Candidates []string `yaml:"candidates"`
	WorkDir    string   `yaml:"work_dir"`
	// LocalRoot enables local file sources. Only files under it are served.
	LocalRoot string `yaml:"local_root"`
}

// YtDlp downloads audio with yt-dlp.
type YtDlp struct {
	cfg      YtDlpConfig
	runner   commandRunner
	lookPath func(string) (string, error)
	stat     func(string) (os.FileInfo, error)
	log      *logger.Logger
}

func NewYtDlp(cfg YtDlpConfig, log *logger.Logger) *YtDlp {
	if cfg.WorkDir == "" {
		cfg.WorkDir = filepath.Join(os.TempDir(), "video-docs")
	}
	return &YtDlp{
		cfg:      cfg,
		runner:   &execRunner{},
		lookPath: exec.LookPath,
		stat:     os.Stat,
		log:      log.Component("acquirer"),
	}
}

// Locate finds the yt-dlp binary: configured path, then PATH, then candidates.
func (y *YtDlp) Locate() (string, error) {
	if y.cfg.Path != "" {
		if _, err := y.stat(y.cfg.Path); err == nil {
			return y.cfg.Path, nil
		}
		y.log.WithField("path", y.cfg.Path).Warn("configured yt-dlp path not found")
	}
	if p, err := y.lookPath("yt-dlp"); err == nil {
		return p, nil
	}
	for _, c := range y.cfg.Candidates {
		if _, err := y.stat(c); err == nil {
			return c, nil
		}
		y.log.WithField("path", c).Debug("yt-dlp candidate not found")
	}
	return "", ErrToolNotFound
}

func (y *YtDlp) Acquire(ctx context.Context, sourceRef string) (string, error) {
	if err := checkRemote(sourceRef); err != nil {
		return "", err
	}
	bin, err := y.Locate()
	if err != nil {
		return "", types.NewError(types.KindAcquisition, err, "locate downloader: %v", err)
	}
	if err := os.MkdirAll(y.cfg.WorkDir, 0o755); err != nil {
		return "", types.NewError(types.KindAcquisition, err, "create work dir: %v", err)
	}

	out := filepath.Join(y.cfg.WorkDir, uuid.NewString()+".mp3")
	res, err := y.runner.Run(ctx, bin, "-x", "--audio-format", "mp3", "--no-warnings", "--output", out, "--", sourceRef)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		msg := strings.TrimSpace(res.Stderr)
		if msg == "" {
			msg = err.Error()
		}
		return "", &types.Error{Kind: types.KindAcquisition, Code: fmt.Sprintf("exit_%d", res.ExitCode), Message: "download audio: " + msg, Err: err}
	}
	if _, err := y.stat(out); err != nil {
		return "", types.NewError(types.KindAcquisition, err, "download audio: output file missing")
	}
	y.log.WithField("file", out).Info("audio downloaded")
	return out, nil
}

// checkRemote allows only absolute http(s) URLs, so a reference can never be
// read by the downloader as an option.
func checkRemote(ref string) error {
	if strings.HasPrefix(ref, "-") {
		return types.NewError(types.KindAcquisition, nil, "invalid source reference %q", ref)
	}
	u, err := url.Parse(ref)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return types.NewError(types.KindAcquisition, err, "unsupported source reference %q", ref)
	}
	return nil
}

// ErrOutsideRoot is returned for local references that resolve outside LocalFile.Root.
var ErrOutsideRoot = errors.New("path outside local media root")

// LocalFile serves file:// references and plain paths under Root. Relative paths
// resolve against Root. Symlinks are followed before the containment check.
type LocalFile struct {
	Root string
}

func (l LocalFile) Acquire(ctx context.Context, sourceRef string) (string, error) {
	path, ok := localPath(sourceRef)
	if !ok {
		return "", types.NewError(types.KindAcquisition, nil, "not a local reference: %s", sourceRef)
	}
	if l.Root == "" {
		return "", types.NewError(types.KindAcquisition, nil, "local sources are disabled")
	}
	root, err := filepath.Abs(l.Root)
	if err == nil {
		root, err = filepath.EvalSymlinks(root)
	}
	if err != nil {
		return "", types.NewError(types.KindAcquisition, err, "resolve local root: %v", err)
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", types.NewError(types.KindAcquisition, err, "stat %s: %v", sourceRef, err)
	}
	rel, err := filepath.Rel(root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", types.NewError(types.KindAcquisition, ErrOutsideRoot, "%s: %v", sourceRef, ErrOutsideRoot)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", types.NewError(types.KindAcquisition, err, "stat %s: %v", sourceRef, err)
	}
	if info.IsDir() {
		return "", types.NewError(types.KindAcquisition, nil, "%s is a directory", sourceRef)
	}
	return resolved, nil
}

func localPath(ref string) (string, bool) {
	if strings.HasPrefix(ref, "file://") {
		u, err := url.Parse(ref)
		if err != nil || u.Path == "" {
			return "", false
		}
		return u.Path, true
	}
	if strings.Contains(ref, "://") {
		return "", false
	}
	return ref, ref != ""
}

// Router sends local references to Local and everything else to Remote. A local
// reference with no Local configured is rejected.
type Router struct {
	Local  AudioAcquirer
	Remote AudioAcquirer
}

func (r Router) Acquire(ctx context.Context, sourceRef string) (string, error) {
	if _, ok := localPath(sourceRef); ok {
		if r.Local == nil {
			return "", types.NewError(types.KindAcquisition, nil, "local sources are disabled")
		}
		return r.Local.Acquire(ctx, sourceRef)
	}
	if r.Remote == nil {
		return "", types.NewError(types.KindAcquisition, nil, "no acquirer for %s", sourceRef)
	}
	return r.Remote.Acquire(ctx, sourceRef)
}

// IsLocal reports whether sourceRef names a file on this machine.
func IsLocal(sourceRef string) bool {
	_, ok := localPath(sourceRef)
	return ok
}
