// Package profile maps artifact fields to the structural locators of one retail
// site. Layout changes on a site are handled by editing its profile, not the
// extraction code.
package profile

import (
	"embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/maltedev/basket-harvester/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed profiles/*.yaml
var builtinFS embed.FS

// PagePlaceholder is replaced with the 1-based page number in static start URLs.
const PagePlaceholder = "{page}"

var (
	ErrUnknownProfile = errors.New("unknown profile")
	ErrInvalidProfile = errors.New("invalid profile")
)

type Mode string

const (
	ModeStatic      Mode = "static"
	ModeInteractive Mode = "interactive"
)

type Profile struct {
	Name        string    `yaml:"name" json:"name"`
	Description string    `yaml:"description" json:"description"`
	Mode        Mode      `yaml:"mode" json:"mode"`
	StartURL    string    `yaml:"start_url" json:"start_url"`
	LinkPrefix  string    `yaml:"link_prefix" json:"link_prefix"`
	Pages       int       `yaml:"pages" json:"pages"`
	Columns     []string  `yaml:"columns" json:"columns"`
	Selectors   Selectors `yaml:"selectors" json:"selectors"`
	Fallbacks   Fallbacks `yaml:"fallbacks" json:"fallbacks"`
}

// Selectors are CSS selectors evaluated relative to the product container,
// except Grid, Ready and Next which are evaluated against the whole page.
type Selectors struct {
	Grid        string       `yaml:"grid" json:"grid"`
	Container   string       `yaml:"container" json:"container"`
	Ready       string       `yaml:"ready" json:"ready"`
	Next        string       `yaml:"next" json:"next"`
	Title       Locator      `yaml:"title" json:"title"`
	Link        Locator      `yaml:"link" json:"link"`
	Price       PriceLocator `yaml:"price" json:"price"`
	Rating      Locator      `yaml:"rating" json:"rating"`
	ReviewCount Locator      `yaml:"review_count" json:"review_count"`
}

// Locator finds a field. With Attr set the attribute value is used, otherwise
// the element text.
type Locator struct {
	Selector string `yaml:"selector" json:"selector"`
	Attr     string `yaml:"attr" json:"attr,omitempty"`
}

// PriceLocator supports prices rendered as separate whole and fraction parts.
type PriceLocator struct {
	Locator  `yaml:",inline"`
	Whole    string `yaml:"whole" json:"whole,omitempty"`
	Fraction string `yaml:"fraction" json:"fraction,omitempty"`
	Currency string `yaml:"currency" json:"currency,omitempty"`
}

type Fallbacks struct {
	Title       string `yaml:"title" json:"title"`
	Price       string `yaml:"price" json:"price"`
	Rating      string `yaml:"rating" json:"rating"`
	ReviewCount string `yaml:"review_count" json:"review_count"`
}

// Parse decodes a YAML profile and applies defaults.
func Parse(data []byte) (*Profile, error) {
	p := &Profile{}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}

	p.applyDefaults()

	if err := p.Validate(); err != nil {
		return nil, err
	}

	return p, nil
}

// Load reads a profile from a YAML file on disk.
func Load(filename string) (*Profile, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile %s: %w", filename, err)
	}
	return Parse(data)
}

// Builtin returns one of the embedded profiles by name.
func Builtin(name string) (*Profile, error) {
	data, err := builtinFS.ReadFile(path.Join("profiles", name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProfile, name)
	}
	return Parse(data)
}

// Names lists the embedded profiles in alphabetical order.
func Names() []string {
	entries, err := builtinFS.ReadDir("profiles")
	if err != nil {
		return nil
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if name, ok := strings.CutSuffix(e.Name(), ".yaml"); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Resolve loads from file when filename is set, otherwise the builtin profile.
func Resolve(name, filename string) (*Profile, error) {
	if filename != "" {
		return Load(filename)
	}
	return Builtin(name)
}

func (p *Profile) applyDefaults() {
	if p.Mode == "" {
		p.Mode = ModeStatic
	}
	if p.Pages <= 0 {
		p.Pages = 1
	}
	if len(p.Columns) == 0 {
		p.Columns = append([]string(nil), models.DefaultColumns...)
	}
	if p.Selectors.Ready == "" {
		p.Selectors.Ready = p.Selectors.Grid
		if p.Selectors.Ready == "" {
			p.Selectors.Ready = p.Selectors.Container
		}
	}

	if p.Fallbacks.Title == "" {
		p.Fallbacks.Title = models.NoTitle
	}
	if p.Fallbacks.Price == "" {
		p.Fallbacks.Price = models.NoPrice
	}
	if p.Fallbacks.Rating == "" {
		p.Fallbacks.Rating = models.NoRating
	}
	if p.Fallbacks.ReviewCount == "" {
		p.Fallbacks.ReviewCount = models.NoReviews
	}
}

func (p *Profile) Validate() error {
	var problems []string

	if p.Name == "" {
		problems = append(problems, "name is required")
	}

	switch p.Mode {
	case ModeStatic, ModeInteractive:
	default:
		problems = append(problems, fmt.Sprintf("unsupported mode %q", p.Mode))
	}

	if u, err := url.Parse(strings.ReplaceAll(p.StartURL, PagePlaceholder, "1")); err != nil || u.Scheme == "" || u.Host == "" {
		problems = append(problems, "start_url must be an absolute URL")
	}

	if p.Selectors.Container == "" {
		problems = append(problems, "selectors.container is required")
	}

	if p.Selectors.Title.Selector == "" {
		problems = append(problems, "selectors.title is required")
	}

	if p.Mode == ModeInteractive && p.Selectors.Next == "" {
		problems = append(problems, "selectors.next is required in interactive mode")
	}

	for _, col := range p.Columns {
		if !models.IsKnownColumn(col) {
			problems = append(problems, fmt.Sprintf("unknown column %q", col))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidProfile, strings.Join(problems, "; "))
	}

	return nil
}

// Paginated reports whether a static start URL addresses pages by number.
func (p *Profile) Paginated() bool {
	return strings.Contains(p.StartURL, PagePlaceholder)
}

// PageURL returns the URL of the given 1-based page.
func (p *Profile) PageURL(page int) string {
	return strings.ReplaceAll(p.StartURL, PagePlaceholder, strconv.Itoa(page))
}

// CheckURL is the URL used for the connectivity check.
func (p *Profile) CheckURL() string {
	return p.PageURL(1)
}
