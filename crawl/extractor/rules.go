package extractor

import (
	"fmt"
	"io/ioutil"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

// Namespace modes control how a dataset namespace is assembled from the
// file name and the array path.
const (
	NSCombine = "combine"
	NSPath    = "path"
	NSDataset = "dataset"
)

// RuleSet matches product file names against a collection. Named subgroups
// of Pattern feed the namespace and acquisition timestamp: "namespace",
// "year", "month", "day", "hour", "minute", "second", "julian_day".
type RuleSet struct {
	Name      string `yaml:"name"`
	Pattern   string `yaml:"pattern"`
	NameSpace string `yaml:"namespace"`
}

// CollectionRuleSets is consulted first match wins. LoadRuleSets prepends
// site-specific rules ahead of the built-ins.
var CollectionRuleSets = []RuleSet{
	{
		Name:      "nisar",
		Pattern:   `^NISAR_(?P<level>L[0-9])_PR_(?P<namespace>[A-Z]+)_.*?(?P<year>\d{4})(?P<month>\d{2})(?P<day>\d{2})T(?P<hour>\d{2})(?P<minute>\d{2})(?P<second>\d{2}).*\.h5$`,
		NameSpace: NSCombine,
	},
	{
		Name:      "generic",
		Pattern:   `\.(h5|nc)$`,
		NameSpace: NSDataset,
	},
}

// LoadRuleSets reads a YAML list of rule sets and prepends them to the
// built-in rules.
func LoadRuleSets(filename string) error {
	rawData, err := ioutil.ReadFile(filename)
	if err != nil {
		return err
	}

	var rules []RuleSet
	if err := yaml.Unmarshal(rawData, &rules); err != nil {
		return fmt.Errorf("rule file %s: %v", filename, err)
	}

	for _, rule := range rules {
		if _, err := regexp.Compile(rule.Pattern); err != nil {
			return fmt.Errorf("rule %s: invalid pattern: %v", rule.Name, err)
		}
		switch rule.NameSpace {
		case NSCombine, NSPath, NSDataset:
		default:
			return fmt.Errorf("rule %s: invalid namespace mode %q", rule.Name, rule.NameSpace)
		}
	}

	CollectionRuleSets = append(rules, CollectionRuleSets...)
	return nil
}

func parseName(path string) (*RuleSet, map[string]string, time.Time) {
	_, basename := filepath.Split(path)

	for i := range CollectionRuleSets {
		ruleSet := &CollectionRuleSets[i]
		re := regexp.MustCompile(ruleSet.Pattern)

		if re.MatchString(basename) {
			match := re.FindStringSubmatch(basename)

			result := make(map[string]string)
			for i, name := range re.SubexpNames() {
				if i != 0 && name != "" {
					result[name] = match[i]
				}
			}
			return ruleSet, result, parseTime(result)
		}
	}
	return nil, nil, time.Time{}
}

func parseTime(nameFields map[string]string) time.Time {
	if _, ok := nameFields["year"]; !ok {
		return time.Time{}
	}

	year, _ := strconv.Atoi(nameFields["year"])
	t := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)

	if _, ok := nameFields["julian_day"]; ok {
		julianDay, _ := strconv.Atoi(nameFields["julian_day"])
		t = t.Add(time.Hour * 24 * time.Duration(julianDay-1))
	}

	if _, ok := nameFields["month"]; ok {
		if _, ok := nameFields["day"]; ok {
			month, _ := strconv.Atoi(nameFields["month"])
			day, _ := strconv.Atoi(nameFields["day"])
			t = time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		}
	}

	if _, ok := nameFields["hour"]; ok {
		hour, _ := strconv.Atoi(nameFields["hour"])
		t = t.Add(time.Hour * time.Duration(hour))
	}

	if _, ok := nameFields["minute"]; ok {
		minute, _ := strconv.Atoi(nameFields["minute"])
		t = t.Add(time.Minute * time.Duration(minute))
	}

	if _, ok := nameFields["second"]; ok {
		second, _ := strconv.Atoi(nameFields["second"])
		t = t.Add(time.Second * time.Duration(second))
	}
	return t
}
