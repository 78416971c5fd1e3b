package host

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/samcharles93/convbench/internal/backend"
	"github.com/samcharles93/convbench/pkg/convparams"
)

var kernelDecl = regexp.MustCompile(`__kernel\s+void\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(`)

// Options is a parsed build option string.
type Options struct {
	Defines map[string]string
	Flags   []string
}

// ParseOptions splits a build option string into -D defines and other flags.
// Both "-DNAME=V" and "-D NAME=V" are accepted; a define without a value is
// set to "1".
func ParseOptions(s string) (Options, error) {
	opts := Options{Defines: map[string]string{}}
	fields := strings.Fields(s)
	for i := 0; i < len(fields); i++ {
		f := fields[i]
		switch {
		case f == "-D":
			if i+1 >= len(fields) {
				return Options{}, errors.New("-D without a definition")
			}
			i++
			f = "-D" + fields[i]
			fallthrough
		case strings.HasPrefix(f, "-D"):
			name, value, ok := strings.Cut(f[2:], "=")
			if !ok {
				value = "1"
			}
			if name == "" {
				return Options{}, fmt.Errorf("empty define in %q", f)
			}
			opts.Defines[name] = value
		case strings.HasPrefix(f, "-cl-"), strings.HasPrefix(f, "-w"), strings.HasPrefix(f, "-Werror"):
			opts.Flags = append(opts.Flags, f)
		default:
			return Options{}, fmt.Errorf("unrecognised build option %q", f)
		}
	}
	return opts, nil
}

// Int returns the integer value of a define.
func (o Options) Int(name string) (int, bool, error) {
	v, ok := o.Defines[name]
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, true, fmt.Errorf("define %s=%q is not an integer", name, v)
	}
	return n, true, nil
}

type program struct {
	session *Session
	kernels []string
	options Options
}

func (s *Session) BuildProgram(ctx context.Context, source, options string) (backend.Program, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, errClosed
	}

	opts, err := ParseOptions(options)
	if err != nil {
		return nil, &backend.Error{Op: "build program", Err: err, Log: "error: " + err.Error()}
	}
	var names []string
	for _, m := range kernelDecl.FindAllStringSubmatch(source, -1) {
		names = append(names, m[1])
	}
	if len(names) == 0 {
		return nil, &backend.Error{
			Op:  "build program",
			Err: errors.New("no kernel entry points"),
			Log: "error: source declares no __kernel functions",
		}
	}
	return &program{session: s, kernels: names, options: opts}, nil
}

func (p *program) Kernel(name string) (backend.Kernel, error) {
	for _, k := range p.kernels {
		if k == name {
			return &kernel{name: name, program: p, session: p.session}, nil
		}
	}
	return nil, fmt.Errorf("no kernel named %q in program (have %s)", name, strings.Join(p.kernels, ", "))
}

func (p *program) Release() error { return nil }

// checkLocal enforces that the work-group size baked in through WGX, WGY and
// WGZ matches the enqueued local size. WGX is the innermost axis, local[2].
func (p *program) checkLocal(local [3]int) error {
	for axis, name := range [3]string{"WGZ", "WGY", "WGX"} {
		v, ok, err := p.options.Int(name)
		if err != nil {
			return err
		}
		if ok && v != local[axis] {
			return fmt.Errorf("program built with %s=%d but enqueued with local size %v", name, v, local)
		}
	}
	return nil
}

// checkCoverage enforces that the global range reaches every output element
// under the work-item mapping named by STRATEGY. With 1 each X item covers MD
// flattened depth x channel-group slots and each Y and Z item an MH or MW
// tile; with 2 each item covers one output position. Programs built without
// STRATEGY are not checked.
func (p *program) checkCoverage(global [3]int, out convparams.ConvParams) error {
	strategy, ok, err := p.options.Int("STRATEGY")
	if err != nil || !ok {
		return err
	}
	var need [3]int
	switch strategy {
	case 1:
		var tile [3]int
		for i, name := range [3]string{"MD", "MH", "MW"} {
			v, ok, err := p.options.Int(name)
			if err != nil {
				return err
			}
			if !ok || v <= 0 {
				return fmt.Errorf("STRATEGY=1 needs a positive %s define", name)
			}
			tile[i] = v
		}
		need = [3]int{
			ceilDiv(out.Dout*out.Cgout(), tile[0]),
			ceilDiv(out.Hout, tile[1]),
			ceilDiv(out.Wout, tile[2]),
		}
	case 2:
		need = [3]int{out.Wout, out.Hout, out.Dout}
	default:
		return fmt.Errorf("unknown STRATEGY=%d", strategy)
	}
	for i := range need {
		if global[i] < need[i] {
			return fmt.Errorf("global size %v does not cover the output: STRATEGY=%d needs at least %v", global, strategy, need)
		}
	}
	return nil
}

func ceilDiv(v, d int) int {
	return (v + d - 1) / d
}
