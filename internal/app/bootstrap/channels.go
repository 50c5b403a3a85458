package bootstrap

import (
	"strings"

	"github.com/wolfman30/leadflow/internal/channels"
	"github.com/wolfman30/leadflow/internal/channels/meta"
	"github.com/wolfman30/leadflow/internal/channels/uazapi"
	"github.com/wolfman30/leadflow/internal/channels/zapi"
	appconfig "github.com/wolfman30/leadflow/internal/config"
)

// BuildChannelRegistry registers the three WhatsApp channels. A base_url in
// UAZAPI integration metadata takes precedence over UAZAPI_BASE_URL.
func BuildChannelRegistry(cfg *appconfig.Config) *channels.Registry {
	registry := channels.NewRegistry()

	metaClient := meta.NewClient(cfg.MetaGraphBaseURL, cfg.ChannelTimeout)
	registry.Register(channels.Channel{Codec: meta.NewCodec(), Sender: metaClient, Fetcher: metaClient})

	zapiClient := zapi.NewClient(cfg.ZAPIBaseURL, cfg.ZAPIClientToken, cfg.ChannelTimeout)
	registry.Register(channels.Channel{Codec: zapi.NewCodec(), Sender: zapiClient, Fetcher: zapiClient})

	uazapiClient := uazapi.NewClient(strings.TrimSpace(cfg.UAZAPIBaseURL), cfg.ChannelTimeout)
	registry.Register(channels.Channel{Codec: uazapi.NewCodec(), Sender: uazapiClient, Fetcher: uazapiClient})

	return registry
}
