// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package outbound re-publishes the event bus's four canonical events
// to outbound-enabled external brokers under a Unified Namespace
// topic pattern, with per-(broker, characteristic) rate limiting.
package outbound

import "strings"

// buildTopic assembles {prefix}/{plant}/{path...}/{char}/{event},
// lowercasing every segment, replacing spaces with underscores, and
// stripping the MQTT-reserved '#', '+' and NUL characters so a
// malformed hierarchy name can never corrupt the topic structure.
func buildTopic(prefix, plant string, path []string, charName, event string) string {
	segments := make([]string, 0, len(path)+4)
	segments = append(segments, prefix, plant)
	segments = append(segments, path...)
	segments = append(segments, charName, event)

	clean := make([]string, 0, len(segments))
	for _, s := range segments {
		if s == "" {
			continue
		}
		clean = append(clean, sanitizeSegment(s))
	}
	return strings.Join(clean, "/")
}

func sanitizeSegment(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.Map(func(r rune) rune {
		switch r {
		case '#', '+', 0:
			return -1
		}
		return r
	}, s)
	return s
}
