package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/adeilh/animeproxy/jikan"
)

func writeSummary(w io.Writer, a jikan.Anime, chars []jikan.Character) error {
	var b strings.Builder

	b.WriteString(a.Title)
	if a.TitleEnglish != nil && *a.TitleEnglish != a.Title {
		fmt.Fprintf(&b, " / %s", *a.TitleEnglish)
	}
	var kind []string
	if a.Type != nil {
		kind = append(kind, *a.Type)
	}
	if a.Episodes != nil {
		kind = append(kind, fmt.Sprintf("%d episodes", *a.Episodes))
	}
	if len(kind) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(kind, ", "))
	}
	b.WriteByte('\n')

	if a.Score != nil {
		fmt.Fprintf(&b, "score: %.2f\n", *a.Score)
	}
	if a.Year != nil {
		fmt.Fprintf(&b, "year: %d\n", *a.Year)
	}
	if len(a.Genres) > 0 {
		names := make([]string, 0, len(a.Genres))
		for _, g := range a.Genres {
			names = append(names, g.Name)
		}
		fmt.Fprintf(&b, "genres: %s\n", strings.Join(names, ", "))
	}

	for _, c := range chars {
		if c.Role != "Main" {
			continue
		}
		fmt.Fprintf(&b, "  %s", c.Character.Name)
		for _, va := range c.VoiceActors {
			if va.Language == "Japanese" {
				fmt.Fprintf(&b, " (%s)", va.Person.Name)
				break
			}
		}
		b.WriteByte('\n')
	}

	_, err := io.WriteString(w, b.String())
	return err
}
