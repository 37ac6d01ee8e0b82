// internal/blockchain/solbc/error_analyzer.go
package solbc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"go.uber.org/zap"
)

// maxLogLines ограничивает количество строк логов симуляции в записи.
const maxLogLines = 8

// AnchorError represents an error from Anchor framework
type AnchorError struct {
	Code int
	Name string
	Msg  string
}

// rpcErrorFields раскладывает ошибку узла в поля лога: код, сообщение,
// хвост логов программы и ошибку Anchor, если она есть.
func rpcErrorFields(err error) []zap.Field {
	var rpcErr *jsonrpc.RPCError
	if !errors.As(err, &rpcErr) {
		return []zap.Field{zap.Error(err)}
	}

	fields := []zap.Field{
		zap.Int("rpc_code", rpcErr.Code),
		zap.String("rpc_message", rpcErr.Message),
	}

	data, ok := rpcErr.Data.(map[string]interface{})
	if !ok {
		return fields
	}
	if instrErr, ok := data["err"]; ok && instrErr != nil {
		fields = append(fields, zap.String("instruction_error", fmt.Sprintf("%v", instrErr)))
	}

	rawLogs, _ := data["logs"].([]interface{})
	logs := make([]string, 0, len(rawLogs))
	for _, entry := range rawLogs {
		line, ok := entry.(string)
		if !ok {
			continue
		}
		logs = append(logs, line)
		if strings.Contains(line, "AnchorError occurred") {
			a := parseAnchorErrorLog(line)
			fields = append(fields,
				zap.Int("anchor_code", a.Code),
				zap.String("anchor_name", a.Name),
				zap.String("anchor_message", a.Msg))
		}
	}
	if len(logs) > maxLogLines {
		logs = logs[len(logs)-maxLogLines:]
	}
	if len(logs) > 0 {
		fields = append(fields, zap.Strings("program_logs", logs))
	}
	return fields
}

// isAlreadyProcessed сообщает, что узел уже видел эту подпись.
func isAlreadyProcessed(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already been processed") || strings.Contains(msg, "alreadyprocessed")
}

// parseAnchorErrorLog parses an Anchor error log string
// Example: "Program log: AnchorError occurred. Error Code: SlippageExceeded. Error Number: 6001. Error Message: Slippage tolerance exceeded."
func parseAnchorErrorLog(line string) AnchorError {
	var result AnchorError

	if _, after, ok := strings.Cut(line, "Error Number:"); ok {
		num, _, _ := strings.Cut(after, ".")
		_, _ = fmt.Sscanf(strings.TrimSpace(num), "%d", &result.Code)
	}
	if _, after, ok := strings.Cut(line, "Error Code:"); ok {
		name, _, _ := strings.Cut(after, ".")
		result.Name = strings.TrimSpace(name)
	}
	if _, after, ok := strings.Cut(line, "Error Message:"); ok {
		result.Msg = strings.TrimSuffix(strings.TrimSpace(after), ".")
	}
	return result
}
