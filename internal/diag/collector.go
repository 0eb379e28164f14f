package diag

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/MimoJanra/SSOPulse/internal/config"
	"github.com/MimoJanra/SSOPulse/internal/models"
)

// SystemCollector gathers environment and configuration snapshots and
// performs bounded log discovery and search. Callers supplying their own
// search directories must run them through the allow-list validator
// first; the collector trusts its inputs.
type SystemCollector struct {
	recorder
	cfg *config.Settings

	// MaxFiles bounds log-file enumeration cost.
	MaxFiles int
}

func NewSystemCollector(cfg *config.Settings, log *logrus.Logger) *SystemCollector {
	return &SystemCollector{
		recorder: newRecorder(log),
		cfg:      cfg,
		MaxFiles: 50,
	}
}

// RunChecks executes the system data collection.
func (d *SystemCollector) RunChecks(ctx context.Context) []models.Result {
	d.Clear()

	d.collectEnvironment()
	d.collectConfiguration()
	d.checkLogLocations()

	return d.Results()
}

func (d *SystemCollector) collectEnvironment() {
	hostname, _ := os.Hostname()
	env := map[string]any{
		"go_version":   runtime.Version(),
		"platform":     runtime.GOOS,
		"architecture": runtime.GOARCH,
		"hostname":     hostname,
		"num_cpu":      runtime.NumCPU(),
	}
	d.add("System - Environment", models.LevelInfo,
		fmt.Sprintf("%s on %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH),
		env, "")
}

func (d *SystemCollector) collectConfiguration() {
	d.add("System - Configuration", models.LevelInfo,
		"Current configuration collected", d.cfg.Snapshot(), "")

	if missing := d.cfg.MissingKeys(); len(missing) > 0 {
		d.add("System - Missing Config", models.LevelWarning,
			fmt.Sprintf("Missing configuration: %s", strings.Join(missing, ", ")),
			map[string]any{"missing_vars": missing},
			"Set missing environment variables")
	}
}

func (d *SystemCollector) checkLogLocations() {
	found := expandLogDirs(d.cfg.LogLocations)
	if len(found) > 0 {
		d.add("System - Log Directories", models.LevelInfo,
			fmt.Sprintf("Found %d log directories", len(found)),
			map[string]any{"found": found}, "")
		return
	}
	d.add("System - Log Directories", models.LevelWarning,
		"No standard log directories found",
		map[string]any{"searched": d.cfg.LogLocations},
		"Ensure the application is installed or check custom log locations")
}

// expandLogDirs resolves wildcard segments against the filesystem and
// keeps only existing directories.
func expandLogDirs(locations []string) []string {
	var dirs []string
	for _, loc := range locations {
		if strings.Contains(loc, "*") {
			matches, err := filepath.Glob(loc)
			if err != nil {
				continue
			}
			for _, m := range matches {
				if info, err := os.Stat(m); err == nil && info.IsDir() {
					dirs = append(dirs, m)
				}
			}
			continue
		}
		if info, err := os.Stat(loc); err == nil && info.IsDir() {
			dirs = append(dirs, loc)
		}
	}
	return dirs
}

// FindLogFiles enumerates files matching the filename patterns under
// each search directory, capped at maxFiles. Nil arguments fall back to
// the configured defaults.
func (d *SystemCollector) FindLogFiles(searchDirs, patterns []string, maxFiles int) []models.LogFileInfo {
	if searchDirs == nil {
		searchDirs = d.cfg.LogLocations
	}
	if patterns == nil {
		patterns = d.cfg.LogFilePatterns
	}
	if maxFiles <= 0 {
		maxFiles = d.MaxFiles
	}

	var files []models.LogFileInfo
	for _, dir := range expandLogDirs(searchDirs) {
		err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return nil // unreadable subtree, keep walking siblings
			}
			if entry.IsDir() {
				return nil
			}
			if len(files) >= maxFiles {
				return fs.SkipAll
			}
			if !matchesAny(entry.Name(), patterns) {
				return nil
			}
			info, err := entry.Info()
			if err != nil {
				return nil
			}
			files = append(files, models.LogFileInfo{
				Path:      path,
				SizeBytes: info.Size(),
				Modified:  info.ModTime(),
				Readable:  isReadable(path),
			})
			return nil
		})
		if err != nil {
			d.log.WithError(err).Warnf("Error searching %s", dir)
		}
		if len(files) >= maxFiles {
			break
		}
	}
	return files
}

func matchesAny(name string, patterns []string) bool {
	for _, p := range patterns {
		if ok, err := filepath.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}

func isReadable(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}

// SearchLogs scans discovered log files line-by-line for the
// error-indicator patterns, stopping at maxMatches. Unreadable files are
// skipped with a logged warning. Nil patterns fall back to the
// configured list.
func (d *SystemCollector) SearchLogs(searchDirs, patterns []string, maxMatches int) ([]models.LogMatch, error) {
	if patterns == nil {
		patterns = d.cfg.ErrorPatterns
	}
	if maxMatches <= 0 {
		maxMatches = 100
	}

	re, err := regexp.Compile("(?i)" + strings.Join(patterns, "|"))
	if err != nil {
		return nil, fmt.Errorf("compile error patterns: %w", err)
	}

	matches := []models.LogMatch{}
	for _, fileInfo := range d.FindLogFiles(searchDirs, nil, 0) {
		if len(matches) >= maxMatches {
			break
		}
		if err := d.scanFile(fileInfo, re, &matches, maxMatches); err != nil {
			d.log.WithError(err).Warnf("Error reading %s", fileInfo.Path)
		}
	}
	return matches, nil
}

func (d *SystemCollector) scanFile(fileInfo models.LogFileInfo, re *regexp.Regexp, matches *[]models.LogMatch, maxMatches int) error {
	f, err := os.Open(fileInfo.Path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if !re.MatchString(line) {
			continue
		}
		*matches = append(*matches, models.LogMatch{
			File:       fileInfo.Path,
			LineNumber: lineNum,
			Content:    strings.TrimRight(line, " \t\r\n"),
			Timestamp:  fileInfo.Modified,
		})
		if len(*matches) >= maxMatches {
			return nil
		}
	}
	return scanner.Err()
}
