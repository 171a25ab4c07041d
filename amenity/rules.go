package amenity

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v2"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

// RuleFile mirrors the YAML rule table. Patterns are kept as data so tuning
// against new listing text does not require a rebuild.
type RuleFile struct {
	GroupTitles []string `yaml:"group_titles"`
	EntryNames  struct {
		Include []string `yaml:"include"`
		Exclude []string `yaml:"exclude"`
	} `yaml:"entry_names"`
	Values struct {
		Include []string `yaml:"include"`
		Exclude []string `yaml:"exclude"`
	} `yaml:"values"`
	ApplianceValues []string       `yaml:"appliance_values"`
	Categories      []CategoryRule `yaml:"categories"`
}

// CategoryRule binds one output category to its matching pattern.
type CategoryRule struct {
	Name    string `yaml:"name"`
	Pattern string `yaml:"pattern"`
}

// Rules is a compiled rule table ready for extraction and categorization.
type Rules struct {
	groupTitles  []*regexp.Regexp
	nameInclude  []*regexp.Regexp
	nameExclude  []*regexp.Regexp
	valueInclude []*regexp.Regexp
	valueExclude []*regexp.Regexp
	appliance    []*regexp.Regexp

	categories []compiledCategory
}

type compiledCategory struct {
	name    string
	pattern *regexp.Regexp
}

// DefaultRules compiles the embedded rule table. The embedded table is
// validated by tests, so a compile failure here is a build defect.
func DefaultRules() *Rules {
	rules, err := ParseRules(defaultRulesYAML)
	if err != nil {
		panic(fmt.Sprintf("amenity: embedded rule table invalid: %v", err))
	}
	return rules
}

// LoadRules reads a rule table override from path.
func LoadRules(path string) (*Rules, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule table: %w", err)
	}
	return ParseRules(raw)
}

// ParseRules unmarshals and compiles a YAML rule table.
func ParseRules(raw []byte) (*Rules, error) {
	var file RuleFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("unmarshal rule table: %w", err)
	}
	return file.Compile()
}

// Compile turns the raw pattern strings into a usable rule set. Every
// pattern is compiled case-insensitive.
func (f *RuleFile) Compile() (*Rules, error) {
	if len(f.GroupTitles) == 0 {
		return nil, fmt.Errorf("rule table has no group titles")
	}
	if len(f.Values.Include) == 0 {
		return nil, fmt.Errorf("rule table has no value inclusion patterns")
	}
	if len(f.Categories) == 0 {
		return nil, fmt.Errorf("rule table has no categories")
	}

	rules := &Rules{}
	var err error
	if rules.groupTitles, err = compileAll("group_titles", f.GroupTitles); err != nil {
		return nil, err
	}
	if rules.nameInclude, err = compileAll("entry_names.include", f.EntryNames.Include); err != nil {
		return nil, err
	}
	if rules.nameExclude, err = compileAll("entry_names.exclude", f.EntryNames.Exclude); err != nil {
		return nil, err
	}
	if rules.valueInclude, err = compileAll("values.include", f.Values.Include); err != nil {
		return nil, err
	}
	if rules.valueExclude, err = compileAll("values.exclude", f.Values.Exclude); err != nil {
		return nil, err
	}
	if rules.appliance, err = compileAll("appliance_values", f.ApplianceValues); err != nil {
		return nil, err
	}

	for _, cat := range f.Categories {
		if cat.Name == "" {
			return nil, fmt.Errorf("category with empty name")
		}
		pattern, err := regexp.Compile("(?i)" + cat.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compile category %q: %w", cat.Name, err)
		}
		rules.categories = append(rules.categories, compiledCategory{name: cat.Name, pattern: pattern})
	}
	return rules, nil
}

func compileAll(section string, patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("compile %s pattern %q: %w", section, p, err)
		}
		out = append(out, compiled)
	}
	return out, nil
}

func matchAny(patterns []*regexp.Regexp, text string) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}
