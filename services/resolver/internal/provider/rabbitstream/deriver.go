package rabbitstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/example/mcat-providers/services/resolver/internal/media"
)

// harness evaluates the payload script text, which yields an async function
// taking (token, tag, asset bytes) and resolving to
// [keys, kversion, kid, browserid]. The script text arrives on stdin with
// the request so only verified bytes are ever evaluated.
const harness = `const chunks = [];
process.stdin.on("data", (c) => chunks.push(c));
process.stdin.on("end", async () => {
  const write = (o) => process.stdout.write(JSON.stringify(o));
  try {
    const req = JSON.parse(Buffer.concat(chunks).toString("utf8"));
    const fn = (0, eval)(req.script);
    if (typeof fn !== "function") throw new Error("payload script is not a function");
    const out = await fn(req.token, req.tag, new Uint8Array(Buffer.from(req.asset, "base64")));
    if (!out || out.length < 4) throw new Error("payload script returned no keys");
    write({ keys: Array.from(out[0] || []), kversion: String(out[1]), kid: String(out[2]), browserid: String(out[3]) });
  } catch (e) {
    write({ error: String((e && e.message) || e) });
  }
});
`

// ScriptDeriver runs a verified payload script under node. Each call starts
// one child process that reads a JSON request on stdin and writes one JSON
// reply on stdout.
type ScriptDeriver struct {
	node   string
	script *Script
}

var _ KeyDeriver = (*ScriptDeriver)(nil)

func NewScriptDeriver(node string, script *Script) *ScriptDeriver {
	if strings.TrimSpace(node) == "" {
		node = "node"
	}
	return &ScriptDeriver{node: node, script: script}
}

type deriveRequest struct {
	Script string `json:"script"`
	Token  string `json:"token"`
	Tag    string `json:"tag"`
	Asset  []byte `json:"asset"`
}

type deriveReply struct {
	Keys      []int       `json:"keys"`
	KVersion  json.Number `json:"kversion"`
	KID       string      `json:"kid"`
	BrowserID string      `json:"browserid"`
	Error     string      `json:"error,omitempty"`
}

func (d *ScriptDeriver) command(ctx context.Context, token, tag string, asset []byte) (*exec.Cmd, error) {
	if d.script == nil || len(d.script.Body) == 0 {
		return nil, fmt.Errorf("%w: no verified payload script", media.ErrConfiguration)
	}
	in, err := json.Marshal(deriveRequest{Script: string(d.script.Body), Token: token, Tag: tag, Asset: asset})
	if err != nil {
		return nil, err
	}
	cmd := exec.CommandContext(ctx, d.node, "-e", harness)
	cmd.Stdin = bytes.NewReader(in)
	return cmd, nil
}

func (d *ScriptDeriver) DeriveKeys(ctx context.Context, token, tag string, asset []byte) (Keys, error) {
	cmd, err := d.command(ctx, token, tag, asset)
	if err != nil {
		return Keys{}, err
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return Keys{}, fmt.Errorf("run %s: %w: %s", d.node, err, strings.TrimSpace(stderr.String()))
	}

	var out deriveReply
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &out); err != nil {
		return Keys{}, fmt.Errorf("%w: deriver output: %w", media.ErrValidation, err)
	}
	if out.Error != "" {
		return Keys{}, fmt.Errorf("%w: deriver: %s", media.ErrValidation, out.Error)
	}
	if len(out.Keys) == 0 {
		return Keys{}, fmt.Errorf("%w: deriver returned no keys", media.ErrValidation)
	}
	return Keys{
		Material:  out.Keys,
		Version:   out.KVersion.String(),
		KID:       out.KID,
		BrowserID: out.BrowserID,
	}, nil
}
