package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/anishjain94/db-optimizer/pkg/logging"
)

// maxArgLogLength caps individual argument values in MCP request logs.
const maxArgLogLength = 200

// maxResponseParseBytes bounds how much of a response body the logger buffers
// for outcome parsing. Query results riding a tool response can be large;
// past the cap the outcome is reported by size instead of parsed.
const maxResponseParseBytes = 64 << 10

// MCPRequestLogger returns middleware that logs MCP JSON-RPC traffic at
// DEBUG level: tool name and sanitized arguments on the way in, outcome and
// latency on the way out. Pass nil logger to disable logging.
func MCPRequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logger == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, err := io.ReadAll(r.Body)
			if err != nil {
				logger.Error("Failed to read MCP request body", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

			// Not every body is valid JSON-RPC; log what parses.
			var rpcReq jsonRPCRequest
			if err := json.Unmarshal(bodyBytes, &rpcReq); err != nil {
				logger.Debug("Failed to parse MCP request JSON", zap.Error(err))
			}

			toolName := rpcReq.Params.Name
			logger.Debug("MCP request",
				zap.String("method", rpcReq.Method),
				zap.String("tool", toolName),
				zap.Any("arguments", sanitizeArguments(rpcReq.Params.Arguments)),
			)

			recorder := &mcpResponseRecorder{
				ResponseWriter: w,
				body:           &bytes.Buffer{},
			}
			start := time.Now()

			next.ServeHTTP(recorder, r)

			duration := time.Since(start)

			if recorder.written > maxResponseParseBytes {
				logger.Debug("MCP response oversized",
					zap.String("tool", toolName),
					zap.Int("bytes", recorder.written),
					zap.Duration("duration", duration),
				)
				return
			}

			var rpcResp jsonRPCResponse
			if err := json.Unmarshal(recorder.body.Bytes(), &rpcResp); err != nil {
				logger.Debug("Failed to parse MCP response JSON", zap.Error(err))
				return
			}

			if rpcResp.Error != nil {
				logger.Debug("MCP response error",
					zap.String("tool", toolName),
					zap.Int("error_code", rpcResp.Error.Code),
					zap.String("error_message", rpcResp.Error.Message),
					zap.Duration("duration", duration),
				)
			} else {
				logger.Debug("MCP response success",
					zap.String("tool", toolName),
					zap.Duration("duration", duration),
				)
			}
		})
	}
}

// jsonRPCRequest is the subset of a tools/call request the logger reads.
type jsonRPCRequest struct {
	Method string `json:"method"`
	Params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"params"`
}

type jsonRPCResponse struct {
	Result any           `json:"result"`
	Error  *jsonRPCError `json:"error"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// mcpResponseRecorder tees the response body so the outcome can be logged.
// Buffering stops at maxResponseParseBytes; written counts everything.
type mcpResponseRecorder struct {
	http.ResponseWriter
	body    *bytes.Buffer
	written int
}

func (r *mcpResponseRecorder) Write(b []byte) (int, error) {
	if remaining := maxResponseParseBytes - r.body.Len(); remaining > 0 {
		if len(b) <= remaining {
			r.body.Write(b)
		} else {
			r.body.Write(b[:remaining])
		}
	}
	r.written += len(b)
	return r.ResponseWriter.Write(b)
}

// sanitizeArguments redacts credential-shaped keys and truncates long values
// before arguments reach the log.
func sanitizeArguments(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}

	sensitiveKeywords := []string{"password", "secret", "token", "key", "credential"}
	result := make(map[string]any, len(args))

	for k, v := range args {
		lowerKey := strings.ToLower(k)
		isSensitive := false
		for _, keyword := range sensitiveKeywords {
			if strings.Contains(lowerKey, keyword) {
				isSensitive = true
				break
			}
		}

		if isSensitive {
			result[k] = logging.RedactedText
			continue
		}

		if str, ok := v.(string); ok {
			result[k] = logging.TruncateString(str, maxArgLogLength)
		} else {
			result[k] = v
		}
	}

	return result
}
