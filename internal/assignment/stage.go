package assignment

import (
	"regexp"
	"strconv"
	"strings"

	"servidores/api/internal/util"
)

type Base string

const (
	BaseSemillas     Base = "Semillas"
	BaseDevocionales Base = "Devocionales"
	BaseRestauracion Base = "Restauracion"
)

const maxModule = 4

var bases = []Base{BaseSemillas, BaseDevocionales, BaseRestauracion}

var stagePattern = regexp.MustCompile(`^(.*?)\s*(\d+)$`)

// Stage is a parsed stage label such as "Semillas 2".
type Stage struct {
	Base      Base
	Module    int
	HasModule bool
}

// ParseBase maps a free-text group name onto the closed set of program bases.
func ParseBase(label string) (Base, bool) {
	folded := util.Fold(label)
	for _, b := range bases {
		if util.Fold(string(b)) == folded {
			return b, true
		}
	}
	return "", false
}

// ParseStage splits "<group> <n>" into base and module. A label without a usable trailing
// number yields module 1 with HasModule unset; Restauracion never carries a module.
func ParseStage(label string) (Stage, bool) {
	trimmed := strings.TrimSpace(label)
	group, module, numbered := trimmed, 1, false
	if m := stagePattern.FindStringSubmatch(trimmed); m != nil && strings.TrimSpace(m[1]) != "" {
		if n, err := strconv.Atoi(m[2]); err == nil && n >= 1 && n <= maxModule {
			group, module, numbered = m[1], n, true
		} else {
			group = m[1]
		}
	}

	base, ok := ParseBase(group)
	if !ok {
		return Stage{}, false
	}
	if base == BaseRestauracion {
		return Stage{Base: base, Module: 1}, true
	}
	return Stage{Base: base, Module: module, HasModule: numbered}, true
}
