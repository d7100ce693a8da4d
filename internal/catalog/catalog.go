// Package catalog holds the read-only learning catalog: courses, topics,
// quizzes, roadmaps and graded projects.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var embedded []byte

// Difficulty levels used by courses and projects.
const (
	Beginner     = "Beginner"
	Intermediate = "Intermediate"
	Advanced     = "Advanced"
)

// Course is a video course tied to one learning topic.
type Course struct {
	ID          string `yaml:"id" json:"id"`
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description" json:"description"`
	Difficulty  string `yaml:"difficulty" json:"difficulty"`
	VideoURL    string `yaml:"video_url" json:"videoUrl"`
	Topic       string `yaml:"topic" json:"topic"`
}

// Topic is a block of learning notes in markdown.
type Topic struct {
	Slug        string `yaml:"slug" json:"slug"`
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description" json:"description"`
	Content     string `yaml:"content" json:"content"`
}

// Question is a multiple-choice quiz question.
type Question struct {
	ID            string   `yaml:"id" json:"id"`
	Question      string   `yaml:"question" json:"question"`
	Options       []string `yaml:"options" json:"options"`
	CorrectAnswer string   `yaml:"correct_answer" json:"-"`
}

// Quiz is a set of questions about one topic.
type Quiz struct {
	Slug        string     `yaml:"slug" json:"slug"`
	Title       string     `yaml:"title" json:"title"`
	Description string     `yaml:"description" json:"description"`
	Topic       string     `yaml:"topic" json:"topic"`
	Questions   []Question `yaml:"questions" json:"questions"`
}

// RoadmapStep is one stage of a roadmap.
type RoadmapStep struct {
	Title       string   `yaml:"title" json:"title"`
	Description string   `yaml:"description" json:"description"`
	SubSteps    []string `yaml:"sub_steps" json:"subSteps"`
}

// Roadmap is an ordered study plan for a topic.
type Roadmap struct {
	ID    string        `yaml:"id" json:"id"`
	Title string        `yaml:"title" json:"title"`
	Topic string        `yaml:"topic" json:"topic"`
	Steps []RoadmapStep `yaml:"steps" json:"steps"`
}

// Project is a hands-on exercise whose reference solution is embedded in
// its markdown content.
type Project struct {
	ID          string   `yaml:"id" json:"id"`
	Title       string   `yaml:"title" json:"title"`
	Description string   `yaml:"description" json:"description"`
	Difficulty  string   `yaml:"difficulty" json:"difficulty"`
	Tags        []string `yaml:"tags" json:"tags"`
	Content     string   `yaml:"content" json:"-"`
}

var (
	solutionBlock   = regexp.MustCompile("(?s)```python\n(.*?)\n```")
	solutionSection = regexp.MustCompile(`(?s)## 6\. Solution Code.*`)
)

// SolutionCode returns the reference solution, or "" if none is embedded.
func (p *Project) SolutionCode() string {
	m := solutionBlock.FindStringSubmatch(p.Content)
	if m == nil {
		return ""
	}
	return m[1]
}

// Brief returns the project content with the solution section removed.
func (p *Project) Brief() string {
	return strings.TrimSpace(solutionSection.ReplaceAllString(p.Content, ""))
}

// Catalog is the full learning catalog indexed by id.
type Catalog struct {
	Courses  []Course  `yaml:"courses" json:"courses"`
	Topics   []Topic   `yaml:"topics" json:"topics"`
	Quizzes  []Quiz    `yaml:"quizzes" json:"quizzes"`
	Roadmaps []Roadmap `yaml:"roadmaps" json:"roadmaps"`
	Projects []Project `yaml:"projects" json:"projects"`

	courses  map[string]*Course
	topics   map[string]*Topic
	quizzes  map[string]*Quiz
	roadmaps map[string]*Roadmap
	projects map[string]*Project
}

// Load parses the catalog compiled into the binary.
func Load() (*Catalog, error) {
	return Parse(embedded)
}

// LoadFile parses a catalog from a YAML file on disk.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.index(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) index() error {
	var errs []error

	c.topics = make(map[string]*Topic, len(c.Topics))
	for i := range c.Topics {
		t := &c.Topics[i]
		if t.Slug == "" || c.topics[t.Slug] != nil {
			errs = append(errs, fmt.Errorf("topic %q: empty or duplicate slug", t.Slug))
			continue
		}
		c.topics[t.Slug] = t
	}

	c.courses = make(map[string]*Course, len(c.Courses))
	for i := range c.Courses {
		co := &c.Courses[i]
		if co.ID == "" || c.courses[co.ID] != nil {
			errs = append(errs, fmt.Errorf("course %q: empty or duplicate id", co.ID))
			continue
		}
		if c.topics[co.Topic] == nil {
			errs = append(errs, fmt.Errorf("course %q: unknown topic %q", co.ID, co.Topic))
		}
		c.courses[co.ID] = co
	}

	c.quizzes = make(map[string]*Quiz, len(c.Quizzes))
	for i := range c.Quizzes {
		q := &c.Quizzes[i]
		if q.Slug == "" || c.quizzes[q.Slug] != nil {
			errs = append(errs, fmt.Errorf("quiz %q: empty or duplicate slug", q.Slug))
			continue
		}
		if c.topics[q.Topic] == nil {
			errs = append(errs, fmt.Errorf("quiz %q: unknown topic %q", q.Slug, q.Topic))
		}
		for _, qq := range q.Questions {
			if !slices.Contains(qq.Options, qq.CorrectAnswer) {
				errs = append(errs, fmt.Errorf("quiz %q question %q: correct answer is not an option", q.Slug, qq.ID))
			}
		}
		c.quizzes[q.Slug] = q
	}

	c.roadmaps = make(map[string]*Roadmap, len(c.Roadmaps))
	for i := range c.Roadmaps {
		r := &c.Roadmaps[i]
		if r.ID == "" || c.roadmaps[r.ID] != nil {
			errs = append(errs, fmt.Errorf("roadmap %q: empty or duplicate id", r.ID))
			continue
		}
		c.roadmaps[r.ID] = r
	}

	c.projects = make(map[string]*Project, len(c.Projects))
	for i := range c.Projects {
		p := &c.Projects[i]
		if p.ID == "" || c.projects[p.ID] != nil {
			errs = append(errs, fmt.Errorf("project %q: empty or duplicate id", p.ID))
			continue
		}
		if p.SolutionCode() == "" {
			errs = append(errs, fmt.Errorf("project %q: no reference solution", p.ID))
		}
		c.projects[p.ID] = p
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid catalog: %w", errors.Join(errs...))
	}
	return nil
}

// Course looks up a course by id.
func (c *Catalog) Course(id string) (*Course, bool) {
	co, ok := c.courses[id]
	return co, ok
}

// Topic looks up a learning topic by slug.
func (c *Catalog) Topic(slug string) (*Topic, bool) {
	t, ok := c.topics[slug]
	return t, ok
}

// Quiz looks up a quiz by slug.
func (c *Catalog) Quiz(slug string) (*Quiz, bool) {
	q, ok := c.quizzes[slug]
	return q, ok
}

// Roadmap looks up a roadmap by id.
func (c *Catalog) Roadmap(id string) (*Roadmap, bool) {
	r, ok := c.roadmaps[id]
	return r, ok
}

// Project looks up a project by id.
func (c *Catalog) Project(id string) (*Project, bool) {
	p, ok := c.projects[id]
	return p, ok
}

// CourseTitles returns all course titles in catalog order.
func (c *Catalog) CourseTitles() []string {
	out := make([]string, len(c.Courses))
	for i, co := range c.Courses {
		out[i] = co.Title
	}
	return out
}

// ProjectTitles returns all project titles in catalog order.
func (c *Catalog) ProjectTitles() []string {
	out := make([]string, len(c.Projects))
	for i, p := range c.Projects {
		out[i] = p.Title
	}
	return out
}

// LearningMaterial concatenates all topic notes into one document used as
// grounding context for the assistant.
func (c *Catalog) LearningMaterial() string {
	parts := make([]string, len(c.Topics))
	for i, t := range c.Topics {
		parts[i] = fmt.Sprintf("Topic: %s\nContent:\n%s", t.Title, t.Content)
	}
	return strings.Join(parts, "\n\n---\n\n")
}
