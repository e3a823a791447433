package vcs

import (
	"fmt"
	"strings"
)

// Branch is a named head reference. It does not own the commit it points
// at; resolution always goes through the backend.
type Branch struct {
	name string
}

func NewBranch(name string) Branch {
	return Branch{name: name}
}

func (b Branch) Name() string {
	return b.name
}

func (b Branch) String() string {
	return b.name
}

// Tag is a named reference to a fixed revision.
type Tag struct {
	name string
}

func NewTag(name string) Tag {
	return Tag{name: name}
}

func (t Tag) Name() string {
	return t.name
}

func (t Tag) String() string {
	return t.name
}

// Author identifies the person recorded on a commit.
type Author struct {
	Name  string
	Email string
}

func (a Author) String() string {
	if a.Email == "" {
		return a.Name
	}
	return a.Name + " <" + a.Email + ">"
}

// ParseAuthor splits the conventional "Name <email>" form. A bare name
// without an address is accepted; Email is left empty.
func ParseAuthor(s string) (Author, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Author{}, fmt.Errorf("empty author")
	}
	open := strings.LastIndexByte(s, '<')
	if open == -1 {
		return Author{Name: s}, nil
	}
	if !strings.HasSuffix(s, ">") {
		return Author{}, fmt.Errorf("malformed author %q: unterminated email", s)
	}
	return Author{
		Name:  strings.TrimSpace(s[:open]),
		Email: s[open+1 : len(s)-1],
	}, nil
}
