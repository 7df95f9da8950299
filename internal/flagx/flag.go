// Package flagx lets several independent flag sets share os.Args: each
// consumer filters the arguments down to the flags it owns before parsing.
package flagx

import (
	"flag"
	"os"
	"strings"
)

// FilterArgs keeps only the flags listed in allowed, together with their
// values. Both "-f value" and "-f=value" forms are recognized. A token that
// starts with "-" is never taken as a value.
func FilterArgs(args []string, allowed []string) []string {
	return FilterArgsWithBools(args, allowed, nil)
}

// FilterArgsWithBools is FilterArgs for flag sets that also own boolean
// flags. Boolean flags never consume the following token, so "-x file" keeps
// file out of the result when -x is boolean.
func FilterArgsWithBools(args []string, valueFlags []string, boolFlags []string) []string {
	values := toSet(valueFlags)
	bools := toSet(boolFlags)

	out := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if strings.HasPrefix(arg, "-") && strings.Contains(arg, "=") {
			name, _, _ := strings.Cut(arg, "=")
			if _, ok := values[name]; ok {
				out = append(out, arg)
			} else if _, ok := bools[name]; ok {
				out = append(out, arg)
			}
			continue
		}

		if _, ok := bools[arg]; ok {
			out = append(out, arg)
			continue
		}

		if _, ok := values[arg]; ok {
			out = append(out, arg)
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				out = append(out, args[i+1])
				i++
			}
		}
	}

	return out
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

// JsonConfigFlags returns the config file path given with -c or -config, or
// an empty string when neither is present.
func JsonConfigFlags() string {
	var path string

	fs := flag.NewFlagSet("json", flag.ContinueOnError)
	fs.StringVar(&path, "config", "", "path to config file")
	fs.StringVar(&path, "c", "", "path to config file (short)")
	_ = fs.Parse(FilterArgs(os.Args[1:], []string{"-c", "-config"}))

	return path
}
