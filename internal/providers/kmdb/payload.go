package kmdb

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// text is a scalar the film database emits either as a string or as a
// number. null, objects and arrays decode to "".
type text string

func (t *text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		*t = ""
		return nil
	}
	switch data[0] {
	case '"':
		var value string
		if err := json.Unmarshal(data, &value); err != nil {
			return err
		}
		*t = text(strings.TrimSpace(value))
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		*t = text(data)
	default:
		*t = ""
	}
	return nil
}

// count is a non-negative integer that may arrive quoted.
type count int

func (c *count) UnmarshalJSON(data []byte) error {
	var raw text
	if err := raw.UnmarshalJSON(data); err != nil {
		return err
	}
	parsed, err := strconv.Atoi(string(raw))
	if err != nil || parsed < 0 {
		*c = 0
		return nil
	}
	*c = count(parsed)
	return nil
}

type searchResponse struct {
	TotalCount count        `json:"TotalCount"`
	Data       []collection `json:"Data"`
}

type collection struct {
	TotalCount count         `json:"TotalCount"`
	Result     []movieRecord `json:"Result"`
}

type movieRecord struct {
	DOCID      text        `json:"DOCID"`
	MovieSeq   text        `json:"movieSeq"`
	Title      text        `json:"title"`
	TitleEng   text        `json:"titleEng"`
	TitleOrg   text        `json:"titleOrg"`
	ProdYear   text        `json:"prodYear"`
	RepRlsDate text        `json:"repRlsDate"`
	Nation     text        `json:"nation"`
	Genre      text        `json:"genre"`
	Runtime    text        `json:"runtime"`
	Rating     text        `json:"rating"`
	Posters    text        `json:"posters"`
	Stills     text        `json:"stlls"`
	Directors  *directors  `json:"directors"`
	Actors     *actors     `json:"actors"`
	Plots      *plots      `json:"plots"`
	Ratings    *ratingList `json:"ratings"`
}

type directors struct {
	Director []struct {
		Name text `json:"directorNm"`
	} `json:"director"`
}

type actors struct {
	Actor []struct {
		Name text `json:"actorNm"`
	} `json:"actor"`
}

type plots struct {
	Plot []struct {
		Text text `json:"plotText"`
	} `json:"plot"`
}

type ratingList struct {
	Rating []struct {
		Grade text `json:"ratingGrade"`
	} `json:"rating"`
}

func (d *directors) first() string {
	if d == nil || len(d.Director) == 0 {
		return ""
	}
	return string(d.Director[0].Name)
}

func (a *actors) names() []string {
	if a == nil {
		return nil
	}
	out := make([]string, 0, len(a.Actor))
	for _, actor := range a.Actor {
		if name := strings.TrimSpace(string(actor.Name)); name != "" {
			out = append(out, name)
		}
	}
	return out
}

func (p *plots) first() string {
	if p == nil || len(p.Plot) == 0 {
		return ""
	}
	return string(p.Plot[0].Text)
}

func (r *ratingList) first() string {
	if r == nil || len(r.Rating) == 0 {
		return ""
	}
	return string(r.Rating[0].Grade)
}
