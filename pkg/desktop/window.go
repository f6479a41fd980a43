package desktop

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Window is one top-level window as reported by the window manager.
type Window struct {
	ID      string `json:"id"`
	Desktop int    `json:"desktop"`
	Title   string `json:"title"`
	Left    int    `json:"left"`
	Top     int    `json:"top"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Active  bool   `json:"is_active"`
	Visible bool   `json:"is_visible"`
}

// Contains reports whether the screen point (x, y) lies inside w, edges included.
func (w Window) Contains(x, y int) bool {
	return x >= w.Left && x <= w.Left+w.Width && y >= w.Top && y <= w.Top+w.Height
}

// ParseWindowList parses `wmctrl -lG` output. Each line holds the window id,
// desktop, x, y, width, height, client host and the title, which may contain
// spaces or be empty.
func ParseWindowList(out string) ([]Window, error) {
	var windows []Window
	scanner := bufio.NewScanner(strings.NewReader(out))
	for n := 1; scanner.Scan(); n++ {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields, title := splitFields(line, 7)
		if len(fields) < 7 {
			return nil, fmt.Errorf("%w: wmctrl line %d: %q", ErrUnexpectedData, n, line)
		}

		nums := make([]int, 5)
		for i := range nums {
			v, err := strconv.Atoi(fields[i+1])
			if err != nil {
				return nil, fmt.Errorf("%w: wmctrl line %d: %q", ErrUnexpectedData, n, line)
			}
			nums[i] = v
		}

		windows = append(windows, Window{
			ID:      fields[0],
			Desktop: nums[0],
			Left:    nums[1],
			Top:     nums[2],
			Width:   nums[3],
			Height:  nums[4],
			Title:   title,
			Visible: true,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return windows, nil
}

// splitFields returns the first n whitespace-separated fields of line and
// the trimmed remainder.
func splitFields(line string, n int) ([]string, string) {
	fields := make([]string, 0, n)
	rest := line
	for len(fields) < n {
		rest = strings.TrimLeft(rest, " \t")
		if rest == "" {
			break
		}
		end := strings.IndexAny(rest, " \t")
		if end < 0 {
			fields = append(fields, rest)
			rest = ""
			break
		}
		fields = append(fields, rest[:end])
		rest = rest[end:]
	}
	return fields, strings.TrimSpace(rest)
}

// Element is a child region of a window.
type Element struct {
	Type     string `json:"type"`
	Label    string `json:"label"`
	Position [2]int `json:"position"`
	Size     [2]int `json:"size"`
}

var treeLine = regexp.MustCompile(`^\s*(0x[0-9a-fA-F]+) (?:"(.*?)"|\(has no name\)): \((.*?)\)\s+(\d+)x(\d+)[+-]-?\d+[+-]-?\d+\s+\+?(-?\d+)\+?(-?\d+)`)

var quoted = regexp.MustCompile(`"([^"]*)"`)

// ParseWindowTree parses the child lines of `xwininfo -tree` output into
// elements with absolute screen positions. Nesting is flattened.
func ParseWindowTree(out string) []Element {
	var elements []Element
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		m := treeLine.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		w, _ := strconv.Atoi(m[4])
		h, _ := strconv.Atoi(m[5])
		x, _ := strconv.Atoi(m[6])
		y, _ := strconv.Atoi(m[7])

		class := ""
		if names := quoted.FindAllStringSubmatch(m[3], -1); len(names) > 0 {
			class = names[len(names)-1][1]
		}

		elements = append(elements, Element{
			Type:     classify(m[2], class),
			Label:    m[2],
			Position: [2]int{x, y},
			Size:     [2]int{w, h},
		})
	}
	return elements
}

func classify(name, class string) string {
	s := strings.ToLower(class + " " + name)
	switch {
	case strings.Contains(s, "radio"):
		return "radio"
	case strings.Contains(s, "check"):
		return "checkbox"
	case strings.Contains(s, "menu"):
		return "menu"
	case strings.Contains(s, "button"):
		return "button"
	case strings.Contains(s, "link"):
		return "link"
	case strings.Contains(s, "entry"), strings.Contains(s, "text"):
		return "text"
	}
	return "region"
}

// Clickable reports whether elements of type t accept clicks.
func Clickable(t string) bool {
	switch t {
	case "button", "menu", "link", "checkbox", "radio":
		return true
	}
	return false
}

// ParseMouseLocation parses `xdotool getmouselocation --shell` output.
func ParseMouseLocation(out string) (int, int, error) {
	x, y := -1, -1
	for _, line := range strings.Split(out, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			continue
		}
		switch key {
		case "X":
			x = n
		case "Y":
			y = n
		}
	}
	if x < 0 || y < 0 {
		return 0, 0, fmt.Errorf("%w: mouse location %q", ErrUnexpectedData, strings.TrimSpace(out))
	}
	return x, y, nil
}
