package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/rentguard/rentguard-cli/internal/model"
	"github.com/rentguard/rentguard-cli/internal/resilience"
	"github.com/rentguard/rentguard-cli/internal/store"
	"github.com/rentguard/rentguard-cli/pkg/engine"
)

// Packet precondition messages.
const (
	MsgNoArtifacts = "generate artifacts before downloading a packet"
	MsgNoTenant    = "tenant id is required to build a packet"
)

// FallbackPacketName is used when no tenant could be resolved.
const FallbackPacketName = "judge_packet.zip"

// PacketRequest selects what to bundle. Both fields are optional.
type PacketRequest struct {
	TenantID  string
	Artifacts []model.Artifact
}

// Packet is an assembled judge packet archive.
type Packet struct {
	TenantID      string
	Filename      string
	Data          []byte
	ArtifactCount int
}

// PacketTrigger requests judge packets from the engine.
type PacketTrigger struct {
	engine engine.Client
	store  store.Store
}

// NewPacketTrigger creates a trigger that falls back to st when a request
// names no artifacts.
func NewPacketTrigger(client engine.Client, st store.Store) *PacketTrigger {
	return &PacketTrigger{engine: client, store: st}
}

// Assemble resolves the artifacts (explicit list, else the whole store) and
// the tenant (explicit id, else the first artifact's tenant), then makes one
// request for the archive. Unresolvable requests fail before any request.
func (p *PacketTrigger) Assemble(ctx context.Context, req PacketRequest) (*Packet, error) {
	arts := req.Artifacts
	if len(arts) == 0 {
		arts = p.store.All()
	}
	if len(arts) == 0 {
		return nil, &resilience.PreconditionError{Reason: MsgNoArtifacts}
	}

	tenant := strings.TrimSpace(req.TenantID)
	if tenant == "" {
		tenant = strings.TrimSpace(arts[0].TenantID)
	}
	if tenant == "" {
		return nil, &resilience.PreconditionError{Reason: MsgNoTenant}
	}

	data, err := p.engine.JudgePacket(ctx, engine.PacketRequest{TenantID: tenant, Artifacts: arts})
	if err != nil {
		zap.L().Warn("packet: assembly failed",
			zap.String("tenant_id", tenant),
			zap.String("kind", string(resilience.KindOf(err))),
			zap.Error(err),
		)
		return nil, err
	}

	zap.L().Info("packet: assembled",
		zap.String("tenant_id", tenant),
		zap.Int("artifacts", len(arts)),
		zap.Int("bytes", len(data)),
	)
	return &Packet{
		TenantID:      tenant,
		Filename:      PacketFilename(tenant),
		Data:          data,
		ArtifactCount: len(arts),
	}, nil
}

// PacketFilename is "<tenant>.zip", or FallbackPacketName for an empty tenant.
func PacketFilename(tenant string) string {
	if tenant == "" {
		return FallbackPacketName
	}
	return tenant + ".zip"
}

// WriteTo saves the archive under dir and returns the written path. Path
// separators in the filename are replaced so the file stays inside dir.
func (p *Packet) WriteTo(dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "packet: create dir %s", dir)
	}

	name := safeFilename(p.Filename)
	if name == "" {
		name = FallbackPacketName
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, p.Data, 0o644); err != nil {
		return "", eris.Wrapf(err, "packet: write %s", path)
	}
	return path, nil
}

func safeFilename(name string) string {
	name = strings.NewReplacer("/", "_", "\\", "_").Replace(name)
	if name == "." || name == ".." {
		return ""
	}
	return name
}
