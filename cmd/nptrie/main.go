// Command nptrie builds and queries static dictionary files.
//
// Usage:
//
//	nptrie build [-n N] [-t|-b] [-w|-l] [-p] [-o FILE] [FILE...]
//	nptrie lookup -d DICT [FILE...]
//	nptrie reverse-lookup -d DICT [FILE...]
//	nptrie common-prefix -d DICT [FILE...]
//	nptrie predict -d DICT [-m MAX] [FILE...]
//	nptrie benchmark [-n N] [FILE...]
//
// Key input is line oriented; a trailing "\t<weight>" sets the key
// weight. Without input files, keys and queries are read from stdin.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/CVDpl/go-nptrie/pkg/nptrie"
	"github.com/CVDpl/go-nptrie/pkg/nptrie/utils"
)

// Exit codes.
const (
	exitOK          = 0
	exitStdinError  = 10
	exitOpenError   = 11
	exitReadError   = 12
	exitBuildError  = 20
	exitSaveError   = 30
	exitStdoutError = 31
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "build":
		os.Exit(runBuild(args))
	case "lookup":
		os.Exit(runLookup(args))
	case "reverse-lookup":
		os.Exit(runReverseLookup(args))
	case "common-prefix":
		os.Exit(runCommonPrefix(args))
	case "predict":
		os.Exit(runPredict(args))
	case "benchmark":
		os.Exit(runBenchmark(args))
	case "-h", "--help", "help":
		usage()
		os.Exit(exitOK)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: nptrie <command> [options] [FILE...]

Commands:
  build            build a dictionary from keys
  lookup           look up exact keys
  reverse-lookup   restore keys from ids
  common-prefix    list keys that are prefixes of each query
  predict          list keys starting with each query
  benchmark        measure build and lookup throughput

Common build options:
  -n N   limit the number of tries to N (default: 3)
  -t     text tails (default)
  -b     binary tails
  -w     weight order (default)
  -l     label order
  -p     one byte per edge (prefix trie)
  -o F   write the dictionary to F`)
}

// buildFlags assembles the Flags bitfield from command-line options.
type buildFlags struct {
	numTries int
	binary   bool
	text     bool
	label    bool
	weight   bool
	prefix   bool
}

func (bf *buildFlags) register(fs *flag.FlagSet) {
	fs.IntVar(&bf.numTries, "n", 0, "maximum number of tries (default 3)")
	fs.BoolVar(&bf.text, "t", false, "text tails (default)")
	fs.BoolVar(&bf.binary, "b", false, "binary tails")
	fs.BoolVar(&bf.weight, "w", false, "weight order (default)")
	fs.BoolVar(&bf.label, "l", false, "label order")
	fs.BoolVar(&bf.prefix, "p", false, "one byte per edge (prefix trie)")
}

func (bf *buildFlags) flags() nptrie.Flags {
	f := nptrie.Flags(bf.numTries)
	if bf.binary {
		f |= nptrie.BinaryTail
	} else if bf.text {
		f |= nptrie.TextTail
	}
	if bf.label {
		f |= nptrie.LabelOrder
	} else if bf.weight {
		f |= nptrie.WeightOrder
	}
	if bf.prefix {
		f |= nptrie.PrefixTrie
	}
	return f
}

// readKeys loads keys (with optional weights) from the given files, or
// stdin when none are given. Returns an exit code on failure.
func readKeys(paths []string, ks *nptrie.Keyset) int {
	if len(paths) == 0 {
		if err := readKeyStream(os.Stdin, ks); err != nil {
			fmt.Fprintf(os.Stderr, "failed to read keys from stdin: %v\n", err)
			return exitStdinError
		}
		return exitOK
	}
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open: %s: %v\n", path, err)
			return exitOpenError
		}
		err = readKeyStream(f, ks)
		f.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to read keys: %s: %v\n", path, err)
			return exitReadError
		}
	}
	return exitOK
}

func readKeyStream(f *os.File, ks *nptrie.Keyset) error {
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		weight := 1.0
		if i := strings.LastIndexByte(line, '\t'); i >= 0 {
			if w, err := strconv.ParseFloat(line[i+1:], 64); err == nil {
				weight = w
				line = line[:i]
			}
		}
		if err := ks.PushBackWeighted([]byte(line), weight); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func runBuild(args []string) int {
	var bf buildFlags
	var output string
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	bf.register(fs)
	fs.StringVar(&output, "o", "", "write the dictionary to FILE (default: stdout)")
	filter := fs.Bool("filter", false, "build a Bloom filter for negative lookups")
	fs.Parse(args)

	ks := nptrie.NewKeyset()
	if code := readKeys(fs.Args(), ks); code != exitOK {
		return code
	}

	trie := nptrie.New()
	opts := nptrie.DefaultOptions()
	opts.Logger = nptrie.NewDefaultLogger()
	opts.EnableFilter = *filter
	if _, err := trie.BuildWithOptions(ks, bf.flags(), opts); err != nil {
		fmt.Fprintf(os.Stderr, "failed to build a dictionary: %v\n", err)
		return exitBuildError
	}

	stats := trie.Stats()
	fmt.Fprintf(os.Stderr, "#keys: %d\n", stats.NumKeys)
	fmt.Fprintf(os.Stderr, "#nodes: %d\n", stats.NumNodes)
	fmt.Fprintf(os.Stderr, "#tries: %d\n", stats.NumTries)
	fmt.Fprintf(os.Stderr, "size: %s\n", humanize.IBytes(uint64(stats.TotalSize)))

	if output != "" {
		if err := trie.Save(output); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write a dictionary to file: %s: %v\n", output, err)
			return exitSaveError
		}
		if sum, err := utils.ComputeBLAKE3File(output); err == nil {
			fmt.Fprintf(os.Stderr, "blake3: %s\n", sum)
		}
		return exitOK
	}
	if _, err := trie.WriteTo(os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write a dictionary to standard output: %v\n", err)
		return exitStdoutError
	}
	return exitOK
}

// openDict loads the dictionary named by -d, memory-mapped unless copy
// is requested.
func openDict(path string, copyToMemory bool) (*nptrie.Trie, error) {
	trie := nptrie.New()
	if copyToMemory {
		return trie, trie.Load(path)
	}
	return trie, trie.MapFile(path)
}

func forEachLine(paths []string, fn func(line string) error) int {
	handle := func(f *os.File, stdin bool) int {
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
		for scanner.Scan() {
			if err := fn(scanner.Text()); err != nil {
				fmt.Fprintf(os.Stderr, "write failed: %v\n", err)
				return exitStdoutError
			}
		}
		if err := scanner.Err(); err != nil {
			if stdin {
				fmt.Fprintf(os.Stderr, "failed to read stdin: %v\n", err)
				return exitStdinError
			}
			fmt.Fprintf(os.Stderr, "failed to read input: %v\n", err)
			return exitReadError
		}
		return exitOK
	}

	if len(paths) == 0 {
		return handle(os.Stdin, true)
	}
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open: %s: %v\n", path, err)
			return exitOpenError
		}
		code := handle(f, false)
		f.Close()
		if code != exitOK {
			return code
		}
	}
	return exitOK
}

func queryFlagSet(name string) (*flag.FlagSet, *string, *bool) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	dict := fs.String("d", "", "dictionary file")
	copyMem := fs.Bool("copy", false, "copy the dictionary into memory instead of mmap")
	return fs, dict, copyMem
}

func runLookup(args []string) int {
	fs, dict, copyMem := queryFlagSet("lookup")
	fs.Parse(args)
	trie, err := openDict(*dict, *copyMem)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open dictionary: %v\n", err)
		return exitOpenError
	}
	defer trie.Close()

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()
	return forEachLine(fs.Args(), func(line string) error {
		if id := trie.Lookup([]byte(line)); id != nptrie.NotFound {
			_, err := fmt.Fprintf(out, "%d\t%s\n", id, line)
			return err
		}
		_, err := fmt.Fprintf(out, "-1\t%s\n", line)
		return err
	})
}

func runReverseLookup(args []string) int {
	fs, dict, copyMem := queryFlagSet("reverse-lookup")
	fs.Parse(args)
	trie, err := openDict(*dict, *copyMem)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open dictionary: %v\n", err)
		return exitOpenError
	}
	defer trie.Close()

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()
	return forEachLine(fs.Args(), func(line string) error {
		id, perr := strconv.ParseUint(strings.TrimSpace(line), 10, 32)
		if perr != nil {
			_, err := fmt.Fprintf(out, "error\tinvalid id: %s\n", line)
			return err
		}
		key, kerr := trie.Key(uint32(id))
		if kerr != nil {
			_, err := fmt.Fprintf(out, "error\tno such id: %d\n", id)
			return err
		}
		_, err := fmt.Fprintf(out, "%d\t%s\n", id, key)
		return err
	})
}

func runCommonPrefix(args []string) int {
	fs, dict, copyMem := queryFlagSet("common-prefix")
	fs.Parse(args)
	trie, err := openDict(*dict, *copyMem)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open dictionary: %v\n", err)
		return exitOpenError
	}
	defer trie.Close()

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()
	return forEachLine(fs.Args(), func(line string) error {
		var ids []uint32
		var lengths []int
		n := trie.Find([]byte(line), &ids, &lengths)
		if _, err := fmt.Fprintf(out, "%d found for %s\n", n, line); err != nil {
			return err
		}
		for i := range ids {
			if _, err := fmt.Fprintf(out, "%d\t%s\n", ids[i], line[:lengths[i]]); err != nil {
				return err
			}
		}
		return nil
	})
}

func runPredict(args []string) int {
	fs, dict, copyMem := queryFlagSet("predict")
	max := fs.Int("m", 0, "maximum number of results per query (0 = unlimited)")
	fs.Parse(args)
	trie, err := openDict(*dict, *copyMem)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open dictionary: %v\n", err)
		return exitOpenError
	}
	defer trie.Close()

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()
	return forEachLine(fs.Args(), func(line string) error {
		var ids []uint32
		var keys [][]byte
		n := trie.PredictDepthFirst([]byte(line), &ids, &keys, *max)
		if _, err := fmt.Fprintf(out, "%d found for %s\n", n, line); err != nil {
			return err
		}
		for i := range ids {
			if _, err := fmt.Fprintf(out, "%d\t%s\n", ids[i], keys[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func runBenchmark(args []string) int {
	var bf buildFlags
	fs := flag.NewFlagSet("benchmark", flag.ExitOnError)
	bf.register(fs)
	fs.Parse(args)

	ks := nptrie.NewKeyset()
	if code := readKeys(fs.Args(), ks); code != exitOK {
		return code
	}
	if ks.Len() == 0 {
		fmt.Fprintln(os.Stderr, "no keys to benchmark")
		return exitStdinError
	}

	maxTries := bf.numTries
	if maxTries == 0 {
		maxTries = 5
	}
	fmt.Printf("%-6s %-10s %-12s %-14s %-14s\n", "tries", "nodes", "size", "build", "lookup")
	for n := 1; n <= maxTries; n++ {
		flags := bf.flags()&^nptrie.NumTriesMask | nptrie.Flags(n)

		start := time.Now()
		trie := nptrie.New()
		ids, err := trie.Build(ks, flags)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to build a dictionary: %v\n", err)
			return exitBuildError
		}
		buildTime := time.Since(start)

		start = time.Now()
		for i := 0; i < ks.Len(); i++ {
			key, _ := ks.At(i)
			if trie.Lookup(key) != ids[i] {
				fmt.Fprintf(os.Stderr, "lookup mismatch for key %d\n", i)
				return exitBuildError
			}
		}
		lookupTime := time.Since(start)

		stats := trie.Stats()
		fmt.Printf("%-6d %-10d %-12s %-14s %-14s\n",
			stats.NumTries,
			stats.NumNodes,
			humanize.IBytes(uint64(stats.TotalSize)),
			fmt.Sprintf("%s keys/s", humanize.CommafWithDigits(rate(ks.Len(), buildTime), 0)),
			fmt.Sprintf("%s keys/s", humanize.CommafWithDigits(rate(ks.Len(), lookupTime), 0)),
		)
	}
	return exitOK
}

func rate(n int, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / d.Seconds()
}
