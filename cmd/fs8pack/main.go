// Command fs8pack builds an FS8 pack from a directory of source files.
// Entries come from a list file (one "SOURCE" or "SOURCE ARCHIVE_NAME"
// per line) or from a recursive walk of the initial directory.
package main

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fs8io/fs8"
)

func usage() {
	fmt.Print("Usage: fs8pack [--hex] [--level:N] [--list:PATH] [--ignore:NAME] [--ignore-dot-files] <initial-directory> [<list-of-files.txt>] <out-file-name.fs8>\n" +
		"\n" +
		"List of files - just list of <file-name> or <file-name> <file-name-in-archive>, each file on the new line.\n" +
		"Without a list file the initial directory is packed recursively.\n" +
		"--hex - output as ASCII array of integers.\n" +
		"--level:N - zstd compression level (1 by default).\n" +
		"--ignore:NAME - skip files matching NAME (repeatable, glob patterns allowed).\n" +
		"--ignore-dot-files - skip files and directories starting with a dot.\n" +
		"\n")
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	hexOutput := false
	level := 1
	listPath := ""
	ignoreDotFiles := false
	var ignores []string
	var pos []string

	for _, a := range args {
		switch {
		case !strings.HasPrefix(a, "-"):
			pos = append(pos, a)
		case a == "--hex":
			hexOutput = true
		case a == "--ignore-dot-files":
			ignoreDotFiles = true
		case strings.HasPrefix(a, "--level:"):
			n, err := strconv.Atoi(a[len("--level:"):])
			if err != nil {
				fmt.Printf("ERROR: bad compression level in %s\n", a)
				return 1
			}
			level = n
		case strings.HasPrefix(a, "--list:"):
			listPath = a[len("--list:"):]
		case strings.HasPrefix(a, "--ignore:"):
			ignores = append(ignores, a[len("--ignore:"):])
		default:
			fmt.Printf("ERROR: Unknown argument %s\n", a)
			return 1
		}
	}

	var initialDir, outPath string
	switch len(pos) {
	case 2:
		initialDir, outPath = pos[0], pos[1]
	case 3:
		initialDir, listPath, outPath = pos[0], pos[1], pos[2]
	default:
		usage()
		return 1
	}

	var entries []fs8.BuildEntry
	var err error
	if listPath != "" {
		entries, err = readListFile(listPath)
	} else {
		entries, err = walkDir(initialDir, ignores, ignoreDotFiles)
	}
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		return 1
	}
	if len(entries) == 0 {
		fmt.Println("ERROR: nothing to pack")
		return 1
	}

	opts := []fs8.BuildOption{fs8.WithCompressionLevel(level)}
	if hexOutput {
		opts = append(opts, fs8.WithHexOutput())
	}
	if err := fs8.Build(initialDir, entries, outPath, opts...); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		return 1
	}

	fmt.Printf("%d file(s) packed with compression level %d\n", len(entries), level)
	return 0
}

// readListFile parses a pack list: one entry per line, either "SOURCE"
// or "SOURCE ARCHIVE_NAME". Blank lines are skipped.
func readListFile(path string) ([]fs8.BuildEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open file %s", path)
	}
	defer f.Close()

	var entries []fs8.BuildEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			continue
		}
		source, rest, found := strings.Cut(line, " ")
		if source == "" {
			continue
		}
		name := ""
		if found {
			fields := strings.Fields(rest)
			if len(fields) > 0 {
				name = fields[0]
			}
		}
		entries = append(entries, fs8.BuildEntry{SourcePath: source, ArchiveName: name})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("cannot read file %s: %v", path, err)
	}
	return entries, nil
}

// walkDir collects every regular file under dir, storing it under its
// slash-separated path relative to dir.
func walkDir(dir string, ignores []string, ignoreDotFiles bool) ([]fs8.BuildEntry, error) {
	var entries []fs8.BuildEntry
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if ignoreDotFiles && strings.HasPrefix(name, ".") && path != dir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		for _, pat := range ignores {
			if ok, _ := filepath.Match(pat, name); ok {
				return nil
			}
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		entries = append(entries, fs8.BuildEntry{
			SourcePath:  rel,
			ArchiveName: filepath.ToSlash(rel),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cannot walk directory %s: %v", dir, err)
	}
	return entries, nil
}
