package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"strconv"
	"strings"
	"syscall"

	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	"github.com/creachadair/mds/slice"
	"github.com/danderson/finn"
	"github.com/danderson/finn/fragments"
	"github.com/danderson/finn/transport"
	"github.com/kr/pretty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var globalArgs struct {
	Verbose bool `flag:"verbose,Log codec failures to stderr"`
}

var encodeArgs struct {
	Up  bool   `flag:"up,Serialize in the reply direction"`
	Out string `flag:"out,Write the payload to this file instead of dumping it to stdout"`
}

var callArgs struct {
	Trace string `flag:"trace,Record the exchanged messages to this file"`
}

func main() {
	root := &command.C{
		Name:     "finn",
		Usage:    "command args...",
		SetFlags: command.Flags(flax.MustBind, &globalArgs),
		Commands: []*command.C{
			{
				Name:  "list",
				Usage: "list [regexp]",
				Help: `List known control commands.

With an argument, only commands whose name matches the regular
expression are listed.`,
				Run: logged(runList),
			},
			{
				Name:  "size",
				Usage: "size command",
				Help: `Show the sizes of a control command's parameter block.

The command can be given by name (NV0080_CTRL_CMD_FB_GET_CAPS) or by
number (0x00801301).`,
				Run: logged(command.Adapt(runSize)),
			},
			{
				Name:  "encode",
				Usage: "encode command params.yaml",
				Help: `Serialize a parameter block described in YAML.

Mapping keys name struct fields, case insensitively. Unions take the
variant selected by their tag field, for example:

  transType: I2C_BUFFER_RW
  transData:
    messageLength: 2
    message: [0xaa, 0xbb]`,
				SetFlags: command.Flags(flax.MustBind, &encodeArgs),
				Run:      logged(command.Adapt(runEncode)),
			},
			{
				Name:  "decode",
				Usage: "decode payload",
				Help:  "Deserialize a FINN payload and print its parameter block.",
				Run:   logged(command.Adapt(runDecode)),
			},
			{
				Name:  "trace",
				Usage: "trace file",
				Help:  "Print the messages in a trace recorded by the transport.",
				Run:   logged(command.Adapt(runTrace)),
			},
			{
				Name:  "call",
				Usage: "call socket command params.yaml",
				Help: `Send a control call to a FINN endpoint and print the reply.

The reply is copied back into the request's parameter block, so
buffers in the request must be large enough to hold the reply.`,
				SetFlags: command.Flags(flax.MustBind, &callArgs),
				Run:      logged(command.Adapt(runCall)),
			},
			{
				Name:  "version",
				Usage: "version",
				Help:  "Print the FINN format version and the host byte order.",
				Run:   logged(runVersion),
			},
			command.HelpCommand(nil),
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	env := root.NewEnv(nil).SetContext(ctx)
	command.RunOrFail(env, os.Args[1:])
}

// logged wraps run so that it runs with the global logger configured
// by the global flags.
func logged(run func(*command.Env) error) func(*command.Env) error {
	return func(env *command.Env) error {
		level := zapcore.WarnLevel
		if globalArgs.Verbose {
			level = zapcore.DebugLevel
		}
		core := zapcore.NewCore(
			zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
				LevelKey:    "level",
				MessageKey:  "message",
				EncodeLevel: zapcore.CapitalLevelEncoder,
			}),
			zapcore.AddSync(os.Stderr),
			level,
		)
		logger := zap.New(core)
		defer logger.Sync()
		defer zap.ReplaceGlobals(logger)()
		return run(env)
	}
}

func runList(env *command.Env) error {
	filter := ""
	if len(env.Args) > 0 {
		filter = env.Args[0]
	}
	re, err := regexp.Compile("(?i)" + filter)
	if err != nil {
		return env.Usagef("invalid filter: %v", err)
	}
	match := func(m *finn.MessageInfo) bool { return re.MatchString(m.Name) }
	for m := range slice.Select(finn.Messages(), match) {
		fmt.Printf("0x%08x  %-48s  %s\n", m.Command(), m.Name, m.Type.Name())
	}
	return nil
}

// parseCommand returns the registered parameter block for a command
// given by name or number.
func parseCommand(s string) (*finn.MessageInfo, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		cmd, err := strconv.ParseUint(s, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid command number %q: %w", s, err)
		}
		iface, msg := finn.SplitCommand(uint32(cmd))
		return finn.Lookup(uint64(iface), uint64(msg))
	}
	return finn.LookupName(s)
}

func runSize(env *command.Env, cmd string) error {
	m, err := parseCommand(cmd)
	if err != nil {
		return err
	}
	fmt.Println(m)
	fmt.Printf("  in-memory size:       %d\n", finn.GetUnserializedSize(uint64(m.Interface), uint64(m.Message)))
	fmt.Printf("  empty serialized size: %d\n", finn.GetSerializedSize(uint64(m.Interface), uint64(m.Message), m.New()))
	return nil
}

// readParams reads a parameter block for m from a YAML file.
func readParams(m *finn.MessageInfo, path string) (any, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ret := m.New()
	if err := decodeParams(bs, ret); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return ret, nil
}

// serialize returns the encoding of params as m's parameter block.
func serialize(m *finn.MessageInfo, params any, dir finn.Direction) ([]byte, error) {
	iface, msg := uint64(m.Interface), uint64(m.Message)
	size := finn.GetSerializedSize(iface, msg, params)
	if size == 0 {
		// Run the real thing into a minimal buffer, to get the
		// error.
		size = finn.HeaderSize
	}
	out := make([]byte, size)
	n, err := finn.Serialize(iface, msg, params, out, dir)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

func runEncode(env *command.Env, cmd, input string) error {
	m, err := parseCommand(cmd)
	if err != nil {
		return err
	}
	params, err := readParams(m, input)
	if err != nil {
		return err
	}
	dir := finn.Down
	if encodeArgs.Up {
		dir = finn.Up
	}
	out, err := serialize(m, params, dir)
	if err != nil {
		return fmt.Errorf("serializing %s: %w", m.Name, err)
	}
	if encodeArgs.Out != "" {
		return os.WriteFile(encodeArgs.Out, out, 0644)
	}
	fmt.Print(hex.Dump(out))
	return nil
}

func runDecode(env *command.Env, input string) error {
	bs, err := os.ReadFile(input)
	if err != nil {
		return err
	}
	h, err := finn.ParseHeader(bs)
	if err != nil {
		return err
	}
	params, err := finn.New(h.Interface, h.Message)
	if err != nil {
		return err
	}
	n, err := finn.DeserializeDown(bs, params)
	if err != nil {
		return fmt.Errorf("decoding %v: %w", h, err)
	}
	fmt.Println(h)
	fmt.Printf("%# v\n", pretty.Formatter(params))
	if n < len(bs) {
		fmt.Printf("%d trailing bytes ignored\n", len(bs)-n)
	}
	return nil
}

func runTrace(env *command.Env, input string) error {
	f, err := os.Open(input)
	if err != nil {
		return err
	}
	defer f.Close()

	for rec, err := range transport.ReadTrace(f) {
		if err != nil {
			return err
		}
		fmt.Println(rec)
		params, err := (&transport.Message{Payload: rec.Payload, Header: finn.Header{
			Interface: rec.Interface,
			Message:   rec.Message,
		}}).Decode()
		if err != nil {
			fmt.Printf("  undecodable: %v\n", err)
			continue
		}
		fmt.Printf("  %# v\n", pretty.Formatter(params))
	}
	return nil
}

func runCall(env *command.Env, socket, cmd, input string) error {
	m, err := parseCommand(cmd)
	if err != nil {
		return err
	}
	params, err := readParams(m, input)
	if err != nil {
		return err
	}
	req, err := serialize(m, params, finn.Down)
	if err != nil {
		return fmt.Errorf("serializing %s: %w", m.Name, err)
	}

	conn, err := transport.Dial(env.Context(), socket)
	if err != nil {
		return err
	}
	defer conn.Close()
	if callArgs.Trace != "" {
		f, err := os.Create(callArgs.Trace)
		if err != nil {
			return err
		}
		defer f.Close()
		conn.Recorder = transport.NewRecorder(f)
	}

	if err := conn.WriteMessage(req); err != nil {
		return err
	}
	reply, err := conn.ReadMessage()
	if err != nil {
		return err
	}
	if _, err := finn.DeserializeUp(reply.Payload, params); err != nil {
		return fmt.Errorf("decoding reply: %w", err)
	}
	fmt.Printf("%# v\n", pretty.Formatter(params))
	return nil
}

func runVersion(env *command.Env) error {
	fmt.Printf("FINN format version %d\n", finn.Version)
	fmt.Printf("host byte order: %s\n", fragments.OrderName(fragments.NativeEndian))
	msgs := finn.Messages()
	ifaces := map[uint32]bool{}
	for _, m := range msgs {
		ifaces[m.Interface] = true
	}
	fmt.Printf("%d control commands in %d interfaces\n", len(msgs), len(ifaces))
	return nil
}
