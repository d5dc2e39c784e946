package macros

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Callbacks is the event interface a preprocessor front-end drives.
// Collector and Recorder implement it.
type Callbacks interface {
	InclusionDirective(file *File)
	FileNotFound()
	Ifdef(tok Token, def MacroDefinition)
	Ifndef(tok Token, def MacroDefinition)
	Defined(tok Token, def MacroDefinition)
	MacroDefined(tok Token, directive *MacroDirective)
	MacroUndefined(tok Token, def MacroDefinition)
	MacroExpands(tok Token, def MacroDefinition)
	EndOfMainFile()
}

// EventKind names a recorded event.
type EventKind string

const (
	EventInclude       EventKind = "include"
	EventFileNotFound  EventKind = "fileNotFound"
	EventDefine        EventKind = "define"
	EventUndef         EventKind = "undef"
	EventIfdef         EventKind = "ifdef"
	EventIfndef        EventKind = "ifndef"
	EventDefined       EventKind = "defined"
	EventExpand        EventKind = "expand"
	EventEndOfMainFile EventKind = "endOfMainFile"
)

// Event is a serializable preprocessor event. For include events File is the
// included file and is empty for a failed search; for the others File, Line
// and Column locate the macro name, and an empty File is a location outside
// any file.
type Event struct {
	Kind        EventKind `yaml:"kind" json:"kind"`
	Name        string    `yaml:"name,omitempty" json:"name,omitempty"`
	File        string    `yaml:"file,omitempty" json:"file,omitempty"`
	Line        uint32    `yaml:"line,omitempty" json:"line,omitempty"`
	Column      uint32    `yaml:"column,omitempty" json:"column,omitempty"`
	Value       string    `yaml:"value,omitempty" json:"value,omitempty"`
	HeaderGuard bool      `yaml:"headerGuard,omitempty" json:"headerGuard,omitempty"`
}

// Script is a recorded event stream.
type Script struct {
	Events []Event `yaml:"events" json:"events"`
}

// ParseScript decodes a YAML script, rejecting unknown fields.
func ParseScript(data []byte) (*Script, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var s Script
	if err := dec.Decode(&s); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode event script: %w", err)
	}
	return &s, nil
}

// LoadScript reads a YAML script from path.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseScript(data)
}

// WriteScript encodes s as YAML.
func WriteScript(w io.Writer, s *Script) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return err
	}
	return enc.Close()
}

// Replay drives a fresh Collector with events, simulating the macro table,
// and returns the finished result. EndOfMainFile is implied at the end.
func Replay(resolver PathResolver, events []Event, opts ...Option) (Result, error) {
	table := NewTable()
	c := NewCollector(resolver, table, opts...)
	if err := Apply(c, table, events); err != nil {
		return Result{}, err
	}
	c.EndOfMainFile()
	res, _ := c.Result()
	return res, nil
}

// Apply feeds events to cb, keeping table in step with define and undef events.
func Apply(cb Callbacks, table *Table, events []Event) error {
	files := make(map[string]*File)
	file := func(path string) *File {
		if path == "" {
			return nil
		}
		f, ok := files[path]
		if !ok {
			f = &File{Path: path}
			files[path] = f
		}
		return f
	}

	for i, ev := range events {
		tok := Token{Name: ev.Name, Location: Location{File: file(ev.File), Line: ev.Line, Column: ev.Column}}
		switch ev.Kind {
		case EventInclude:
			cb.InclusionDirective(file(ev.File))
		case EventFileNotFound:
			cb.FileNotFound()
		case EventDefine:
			info := &MacroInfo{Name: ev.Name, Location: tok.Location, Body: ev.Value, UsedForHeaderGuard: ev.HeaderGuard}
			cb.MacroDefined(tok, table.Define(info))
		case EventUndef:
			cb.MacroUndefined(tok, table.Undefine(ev.Name, tok.Location))
		case EventIfdef:
			cb.Ifdef(tok, table.Definition(ev.Name))
		case EventIfndef:
			cb.Ifndef(tok, table.Definition(ev.Name))
		case EventDefined:
			cb.Defined(tok, table.Definition(ev.Name))
		case EventExpand:
			cb.MacroExpands(tok, table.Definition(ev.Name))
		case EventEndOfMainFile:
			cb.EndOfMainFile()
		default:
			return fmt.Errorf("event %d: unknown kind %q", i, ev.Kind)
		}
	}
	return nil
}

// Recorder captures events as a Script and forwards them to Next, if set.
type Recorder struct {
	Next   Callbacks
	Script Script
}

func (r *Recorder) add(ev Event) {
	r.Script.Events = append(r.Script.Events, ev)
}

func tokenEvent(kind EventKind, tok Token) Event {
	ev := Event{Kind: kind, Name: tok.Name, Line: tok.Location.Line, Column: tok.Location.Column}
	if tok.Location.File != nil {
		ev.File = tok.Location.File.Path
	}
	return ev
}

func (r *Recorder) InclusionDirective(file *File) {
	ev := Event{Kind: EventInclude}
	if file != nil {
		ev.File = file.Path
	}
	r.add(ev)
	if r.Next != nil {
		r.Next.InclusionDirective(file)
	}
}

func (r *Recorder) FileNotFound() {
	r.add(Event{Kind: EventFileNotFound})
	if r.Next != nil {
		r.Next.FileNotFound()
	}
}

func (r *Recorder) Ifdef(tok Token, def MacroDefinition) {
	r.add(tokenEvent(EventIfdef, tok))
	if r.Next != nil {
		r.Next.Ifdef(tok, def)
	}
}

func (r *Recorder) Ifndef(tok Token, def MacroDefinition) {
	r.add(tokenEvent(EventIfndef, tok))
	if r.Next != nil {
		r.Next.Ifndef(tok, def)
	}
}

func (r *Recorder) Defined(tok Token, def MacroDefinition) {
	r.add(tokenEvent(EventDefined, tok))
	if r.Next != nil {
		r.Next.Defined(tok, def)
	}
}

func (r *Recorder) MacroDefined(tok Token, directive *MacroDirective) {
	ev := tokenEvent(EventDefine, tok)
	if directive != nil && directive.Info != nil {
		ev.Value = directive.Info.Body
		ev.HeaderGuard = directive.Info.UsedForHeaderGuard
	}
	r.add(ev)
	if r.Next != nil {
		r.Next.MacroDefined(tok, directive)
	}
}

func (r *Recorder) MacroUndefined(tok Token, def MacroDefinition) {
	r.add(tokenEvent(EventUndef, tok))
	if r.Next != nil {
		r.Next.MacroUndefined(tok, def)
	}
}

func (r *Recorder) MacroExpands(tok Token, def MacroDefinition) {
	r.add(tokenEvent(EventExpand, tok))
	if r.Next != nil {
		r.Next.MacroExpands(tok, def)
	}
}

func (r *Recorder) EndOfMainFile() {
	r.add(Event{Kind: EventEndOfMainFile})
	if r.Next != nil {
		r.Next.EndOfMainFile()
	}
}
