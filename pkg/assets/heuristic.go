package assets

import (
	"regexp"
	"strings"
)

// infrastructureNouns is the fixed vocabulary the injection heuristic
// matches against. Matching is word-wise on the lowercased query.
var infrastructureNouns = map[string]struct{}{
	// Generic infrastructure terms.
	"host": {}, "hosts": {}, "hostname": {}, "server": {}, "servers": {},
	"node": {}, "nodes": {}, "vm": {}, "vms": {}, "machine": {}, "machines": {},
	"asset": {}, "assets": {}, "inventory": {}, "device": {}, "devices": {},
	"infrastructure": {}, "datacenter": {}, "cluster": {},

	// Environment names.
	"production": {}, "prod": {}, "staging": {}, "stage": {},
	"development": {}, "dev": {}, "test": {}, "qa": {},

	// OS families.
	"linux": {}, "windows": {}, "ubuntu": {}, "debian": {}, "centos": {},
	"rhel": {}, "redhat": {},

	// Common managed services.
	"nginx": {}, "apache": {}, "mysql": {}, "postgres": {}, "postgresql": {},
	"redis": {}, "docker": {}, "kubernetes": {}, "ssh": {}, "database": {},
	"databases": {}, "service": {}, "services": {},
}

// ipLikePattern matches dotted-quad tokens. Loose on purpose: the goal is
// "this looks like an IP", resolution against inventory happens later.
var ipLikePattern = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)

var wordSplitter = regexp.MustCompile(`[^a-z0-9.\-]+`)

// ShouldInject reports whether the query references infrastructure and
// therefore warrants asset context in the prompt. Deterministic: same
// query, same answer.
func ShouldInject(query string) bool {
	lower := strings.ToLower(query)
	if ipLikePattern.MatchString(lower) {
		return true
	}
	for _, word := range wordSplitter.Split(lower, -1) {
		word = strings.Trim(word, ".-")
		if _, ok := infrastructureNouns[word]; ok {
			return true
		}
	}
	return false
}

// LooksLikeIP reports whether the target token is a dotted-quad address.
func LooksLikeIP(target string) bool {
	return ipLikePattern.MatchString(target)
}
