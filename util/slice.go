package util

import "slices"

// AppendUnique appends the values not already present in list, keeping order.
func AppendUnique(list []string, values ...string) []string {
	for _, v := range values {
		if !slices.Contains(list, v) {
			list = append(list, v)
		}
	}
	return list
}

func Remove(list []string, value string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v != value {
			out = append(out, v)
		}
	}
	return out
}

// Replace substitutes value with replacements at the position of value.
// Replacements already present elsewhere in the list are not duplicated.
func Replace(list []string, value string, replacements ...string) []string {
	idx := slices.Index(list, value)
	if idx < 0 {
		return AppendUnique(list, replacements...)
	}
	out := make([]string, 0, len(list)+len(replacements))
	out = append(out, list[:idx]...)
	for _, r := range replacements {
		if !slices.Contains(list, r) && !slices.Contains(out, r) {
			out = append(out, r)
		}
	}
	for _, v := range list[idx+1:] {
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}
