package indexer

import (
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"govwatch/internal/contracts"
	"govwatch/internal/model"
)

func buildChainEvent(chainID uint64, name contracts.EventName, log types.Log, args map[string]string) model.ChainEvent {
	topics := make([]string, 0, len(log.Topics))
	for _, topic := range log.Topics {
		topics = append(topics, topic.Hex())
	}

	return model.ChainEvent{
		ChainID:     chainID,
		Contract:    log.Address.Hex(),
		EventName:   string(name),
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash.Hex(),
		TxHash:      log.TxHash.Hex(),
		LogIndex:    uint64(log.Index),
		Topics:      topics,
		Args:        args,
		Data:        hexutil.Encode(log.Data),
	}
}

// decodeLogs converts raw logs into chain events. Removed logs and logs that
// fail to decode are skipped with a warning.
func decodeLogs(chainID uint64, name contracts.EventName, logs []types.Log, logger *zap.Logger) []model.ChainEvent {
	events := make([]model.ChainEvent, 0, len(logs))
	for _, log := range logs {
		if log.Removed {
			continue
		}
		args, err := contracts.DecodeLog(name, log)
		if err != nil {
			logger.Warn("skip undecodable log",
				zap.Uint64("chain_id", chainID),
				zap.String("event", string(name)),
				zap.String("tx_hash", log.TxHash.Hex()),
				zap.Uint("log_index", log.Index),
				zap.Error(err),
			)
			continue
		}
		events = append(events, buildChainEvent(chainID, name, log, args))
	}
	return events
}

// subjectID extracts the proposal or multisig transaction id an event is about.
func subjectID(name contracts.EventName, event model.ChainEvent) (uint64, bool) {
	topic := event.Topic(name.SubjectTopic())
	if topic == "" {
		return 0, false
	}
	id, err := contracts.TopicUint(topic)
	if err != nil {
		return 0, false
	}
	return id, true
}
