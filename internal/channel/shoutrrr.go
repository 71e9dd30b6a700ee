package channel

import (
	"context"
	"fmt"
	"strings"

	"github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/types"
	"github.com/sirupsen/logrus"

	"workflow-orchestrator/internal/models"
)

// ShoutrrrChannel delivers alerts through any shoutrrr-supported service
// (telegram, slack, discord, smtp, ...). The instance's "url" param is the
// shoutrrr service URL.
type ShoutrrrChannel struct {
	log *logrus.Logger
}

func NewShoutrrrChannel(log *logrus.Logger) *ShoutrrrChannel {
	return &ShoutrrrChannel{log: log}
}

func (c *ShoutrrrChannel) Process(_ context.Context, info models.AlertInfo) models.AlertResult {
	url := info.Params[ParamURL]
	if url == "" {
		return models.AlertResult{Status: "false", Message: "shoutrrr url is empty"}
	}

	sender, err := shoutrrr.CreateSender(url)
	if err != nil {
		return models.AlertResult{Status: "false", Message: fmt.Sprintf("create shoutrrr sender: %v", err)}
	}

	params := types.Params{}
	if info.Data.Title != "" {
		params["title"] = info.Data.Title
	}

	errs := sender.Send(info.Data.Content, &params)
	var failures []string
	for _, err := range errs {
		if err != nil {
			failures = append(failures, err.Error())
		}
	}
	if len(failures) > 0 {
		c.log.WithField("errors", len(failures)).Warn("shoutrrr delivery failed")
		return models.AlertResult{Status: "false", Message: "shoutrrr send: " + strings.Join(failures, "; ")}
	}
	return models.AlertResult{Status: "true", Message: "shoutrrr alert sent"}
}

func (c *ShoutrrrChannel) CloseAlert(_ context.Context, _ models.AlertInfo) models.AlertResult {
	return models.AlertResult{Status: "true", Message: "no alert need to close"}
}
