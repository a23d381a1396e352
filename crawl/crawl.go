package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"log"
	"os"

	extr "github.com/nci/gsar/crawl/extractor"
)

func ensure(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

func main() {
	crawlDir := flag.String("d", "", "crawl a directory tree instead of extracting one file")
	conc := flag.Int("conc", 4, "concurrency of the directory crawler")
	pattern := flag.String("pattern", "", "pattern expression over 'path' and 'type' to filter crawled entries")
	followSymlink := flag.Bool("follow_symlink", false, "follow symbolic links while crawling")
	outputFormat := flag.String("fmt", "json", "output format: json or tsv")
	ruleFile := flag.String("rules", "", "YAML file with extra collection rule sets")
	flag.Parse()

	if len(*ruleFile) > 0 {
		ensure(extr.LoadRuleSets(*ruleFile))
	}

	if len(*crawlDir) > 0 {
		ensure(extr.ExtractPosix(*crawlDir, *conc, *pattern, *followSymlink, *outputFormat))
		return
	}

	if flag.NArg() != 1 {
		log.Fatal("Please provide a path to a product file or '-' for reading from stdin")
	}

	path := flag.Arg(0)
	if path == "-" {
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Scan()
		path = scanner.Text()
	}

	geoFile, err := extr.ExtractSARInfo(path)
	ensure(err)

	out, err := json.Marshal(&geoFile)
	ensure(err)

	_, err = os.Stdout.Write(out)
	ensure(err)
}
