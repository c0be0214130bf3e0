// Package consumer triggers index rebuilds from requests on the
// index-requests Kafka topic.
package consumer

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/logger"
)

// URLIndexer rebuilds the index from a product file.
type URLIndexer interface {
	IndexFromURL(ctx context.Context, src string) (*ingestion.IndexResponse, error)
}

// HandleMessage returns a MessageHandler that decodes an IndexRequest and
// runs the rebuild synchronously. Malformed requests, requests that lose
// the race to a running build and requests for bad input are committed;
// only failures worth retrying keep the offset uncommitted.
func HandleMessage(indexer URLIndexer) kafka.MessageHandler {
	log := slog.Default().With("component", "index-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		req, err := kafka.DecodeJSON[ingestion.IndexRequest](value)
		if err != nil {
			log.Error("dropping malformed index request", "key", string(key), "error", err)
			return nil
		}
		if req.FileURL == "" {
			log.Error("dropping index request without file_url", "key", string(key))
			return nil
		}
		if req.RequestID != "" {
			ctx = logger.WithRequestID(ctx, req.RequestID)
		}

		resp, err := indexer.IndexFromURL(ctx, req.FileURL)
		switch {
		case err == nil:
			logger.FromContext(ctx).Info("index request completed",
				"file_url", req.FileURL,
				"build_id", resp.BuildID,
				"generation", resp.GenerationID,
				"indexed", resp.Indexed,
				"skipped", resp.Skipped,
			)
			return nil
		case errors.Is(err, apperrors.ErrBuildInProgress):
			logger.FromContext(ctx).Warn("index request skipped, build in progress", "file_url", req.FileURL)
			return nil
		case errors.Is(err, apperrors.ErrInvalidInput):
			logger.FromContext(ctx).Error("index request rejected", "file_url", req.FileURL, "error", err)
			return nil
		default:
			return err
		}
	}
}
