package briefcase

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/heroiclabs/nakama-common/runtime"
	"google.golang.org/protobuf/encoding/protojson"
)

// RPC endpoint ids.
const (
	RpcIdCommand     = "briefcase_command"
	RpcIdReply       = "briefcase_reply"
	RpcIdList        = "briefcase_list"
	RpcIdAccountDump = "briefcase_account_dump"
)

func registerRpcs(initializer runtime.Initializer, p *briefcaseImpl) error {
	rpcs := map[string]func(context.Context, runtime.Logger, *sql.DB, runtime.NakamaModule, string) (string, error){
		RpcIdCommand:     rpcCommand(p),
		RpcIdReply:       rpcReply(p),
		RpcIdList:        rpcList(p),
		RpcIdAccountDump: rpcAccountDump(p),
	}
	for id, fn := range rpcs {
		if err := initializer.RegisterRpc(id, fn); err != nil {
			return err
		}
	}
	return nil
}

func sessionUserID(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(runtime.RUNTIME_CTX_USER_ID).(string)
	if !ok || userID == "" {
		return "", ErrNoSessionUser
	}
	return userID, nil
}

type commandRequest struct {
	Args []string `json:"args"`
}

// rpcCommand runs one briefcase command line for the session user.
func rpcCommand(p *briefcaseImpl) func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	return func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
		userID, err := sessionUserID(ctx)
		if err != nil {
			return "", err
		}

		request := &commandRequest{}
		if err := json.Unmarshal([]byte(payload), request); err != nil {
			return "", ErrPayloadDecode
		}

		result, err := p.Dispatch(ctx, logger, nk, userID, request.Args)
		if err != nil {
			return "", err
		}
		response, err := json.Marshal(result)
		if err != nil {
			return "", ErrPayloadEncode
		}
		return string(response), nil
	}
}

type replyRequest struct {
	MessageID string `json:"message_id"`
	Text      string `json:"text"`
}

// rpcReply routes a chat reply to the pending interaction it answers, if any.
func rpcReply(p *briefcaseImpl) func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	return func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
		userID, err := sessionUserID(ctx)
		if err != nil {
			return "", err
		}

		request := &replyRequest{}
		if err := json.Unmarshal([]byte(payload), request); err != nil {
			return "", ErrPayloadDecode
		}
		if request.MessageID == "" {
			return "", ErrBadInput
		}

		reply, err := p.interactionsSystem.Resume(ctx, logger, nk, userID, request.MessageID, request.Text)
		if err != nil {
			if text := errorReply(err); text != "" {
				reply = text
			} else {
				return "", err
			}
		}
		response, err := json.Marshal(&UseResult{Message: reply})
		if err != nil {
			return "", ErrPayloadEncode
		}
		return string(response), nil
	}
}

type listRequest struct {
	UserID string `json:"user_id,omitempty"`
}

type listResponse struct {
	Items []*Item `json:"items"`
	Limit int     `json:"limit"`
}

// rpcList returns an inventory document as structured data, for host UIs that
// render their own views.
func rpcList(p *briefcaseImpl) func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	return func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
		userID, err := sessionUserID(ctx)
		if err != nil {
			return "", err
		}

		request := &listRequest{}
		if payload != "" {
			if err := json.Unmarshal([]byte(payload), request); err != nil {
				return "", ErrPayloadDecode
			}
		}
		target := request.UserID
		if target == "" {
			target = userID
		}

		inv, _, err := p.inventorySystem.Load(ctx, logger, nk, target)
		if err != nil {
			return "", err
		}
		response, err := json.Marshal(&listResponse{Items: inv.Items(), Limit: inv.Limit()})
		if err != nil {
			return "", ErrPayloadEncode
		}
		return string(response), nil
	}
}

// rpcAccountDump returns a full account record for moderation, admins only.
func rpcAccountDump(p *briefcaseImpl) func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	return func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
		userID, err := sessionUserID(ctx)
		if err != nil {
			return "", err
		}
		if !p.inventorySystem.IsAdmin(userID) {
			return "", ErrUnauthorized
		}

		request := &listRequest{}
		if err := json.Unmarshal([]byte(payload), request); err != nil {
			return "", ErrPayloadDecode
		}
		if request.UserID == "" {
			return "", ErrBadInput
		}

		account, err := nk.AccountGetId(ctx, request.UserID)
		if err != nil {
			logger.Error("failed to read account %s: %v", request.UserID, err)
			return "", ErrUserNotFound
		}
		response, err := protojson.Marshal(account)
		if err != nil {
			return "", ErrPayloadEncode
		}
		return string(response), nil
	}
}
