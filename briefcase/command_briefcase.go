package briefcase

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/heroiclabs/nakama-common/runtime"
)

type commandHandler func(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string, args []string) (*UseResult, error)

type command struct {
	key     string
	aliases []string
	// adminOnly verbs pass through the admin gate.
	adminOnly bool
	// readonlyOK verbs still work when the inventory is read-only.
	readonlyOK bool
	handler    commandHandler
}

const topPageSize = 10

func (p *briefcaseImpl) buildCommands() {
	p.commands = []*command{
		{key: "list", aliases: []string{"-l", "items"}, readonlyOK: true, handler: p.cmdList},
		{key: "all", aliases: []string{"-a"}, readonlyOK: true, handler: p.cmdAll},
		{key: "inspect", aliases: []string{"check", "-i"}, readonlyOK: true, handler: p.cmdInspect},
		{key: "top", aliases: []string{"-t"}, readonlyOK: true, handler: p.cmdTop},
		{key: "use", handler: p.cmdUse},
		{key: "transfer", aliases: []string{"give", "send"}, handler: p.cmdTransfer},
		{key: "toss", aliases: []string{"discard", "drop"}, handler: p.cmdToss},
		{key: "sell", handler: p.cmdSell},
		{key: "trade", handler: p.cmdTrade},
		{key: "add_item", adminOnly: true, handler: p.cmdAddItem},
		{key: "remove_item", adminOnly: true, handler: p.cmdRemoveItem},
		{key: "clear_inventory", adminOnly: true, handler: p.cmdClearInventory},
		{key: "make_item", adminOnly: true, handler: p.cmdMakeItem},
	}
}

func (p *briefcaseImpl) findCommand(verb string) *command {
	for _, cmd := range p.commands {
		if cmd.key == verb {
			return cmd
		}
		for _, alias := range cmd.aliases {
			if alias == verb {
				return cmd
			}
		}
	}
	return nil
}

func (p *briefcaseImpl) featureIgnored(key string) bool {
	for _, ignored := range p.GetInventorySystem().Config().IgnoreFeatures {
		if ignored == key {
			return true
		}
	}
	return false
}

func (p *briefcaseImpl) usageText(userID string) string {
	cfg := p.GetInventorySystem().Config()
	var keys []string
	for _, cmd := range p.commands {
		if p.featureIgnored(cmd.key) {
			continue
		}
		if cmd.adminOnly && !p.GetInventorySystem().IsAdmin(userID) {
			continue
		}
		if cfg.Readonly && !cmd.readonlyOK {
			continue
		}
		keys = append(keys, cmd.key)
	}
	return "Available commands: " + strings.Join(keys, ", ")
}

// Dispatch routes one command line into the systems. Domain errors come back
// as formatted reply text; only infrastructure failures propagate as errors.
func (p *briefcaseImpl) Dispatch(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string, args []string) (*UseResult, error) {
	if len(args) == 0 {
		return &UseResult{Message: p.usageText(userID)}, nil
	}

	verb := strings.ToLower(args[0])
	cmd := p.findCommand(verb)
	if cmd == nil || p.featureIgnored(cmd.key) {
		return &UseResult{Message: fmt.Sprintf("Unknown command \"%s\". %s", verb, p.usageText(userID))}, nil
	}

	cfg := p.GetInventorySystem().Config()
	if cfg.Readonly && !cmd.readonlyOK {
		return &UseResult{Message: errorReply(ErrReadonlyInventory)}, nil
	}
	if cmd.adminOnly && !p.GetInventorySystem().IsAdmin(userID) {
		return &UseResult{Message: errorReply(ErrUnauthorized)}, nil
	}

	result, err := cmd.handler(ctx, logger, nk, userID, args[1:])
	if err != nil {
		if reply := errorReply(err); reply != "" {
			return &UseResult{Message: reply}, nil
		}
		return nil, err
	}
	return result, nil
}

// errorReply translates a domain sentinel into user-facing text, or "" for
// errors that should propagate.
func errorReply(err error) string {
	switch err {
	case ErrItemNotFound:
		return "❌ You don't have that item."
	case ErrUserNotFound:
		return "❌ No such user."
	case ErrCapacityExceeded:
		return "❌ Not enough room in the briefcase."
	case ErrInsufficientAmount:
		return "❌ You don't have that many."
	case ErrInvalidAmount:
		return "❌ That amount doesn't make sense."
	case ErrUnauthorized:
		return "❌ You're not allowed to do that."
	case ErrMalformedContainer:
		return "❌ That container is broken inside. Best not to open it."
	case ErrSelfTargetRejected:
		return "❌ You can't target yourself."
	case ErrStaleInteraction:
		return "❌ That offer is no longer valid."
	case ErrInvalidCheque:
		return "❌ That cheque isn't worth anything."
	case ErrReadonlyInventory:
		return "🔒 This briefcase is read-only."
	case ErrVersionConflict:
		return "❌ Things changed mid-action. Try again."
	case ErrBadInput:
		return "❌ I couldn't make sense of that."
	}
	return ""
}

// parseItemToken splits a "key*amount" token. A bare key means amount 1;
// "key*all" selects everything held.
func parseItemToken(token string) (key string, amount int, all bool, err error) {
	parts := strings.SplitN(token, "*", 2)
	key = strings.TrimSpace(parts[0])
	if key == "" {
		return "", 0, false, ErrBadInput
	}
	if len(parts) == 1 {
		return key, 1, false, nil
	}
	qty := strings.TrimSpace(strings.ToLower(parts[1]))
	if qty == "all" {
		return key, 0, true, nil
	}
	n, convErr := strconv.Atoi(qty)
	if convErr != nil || n < 1 {
		return "", 0, false, ErrInvalidAmount
	}
	return key, n, false, nil
}

func (p *briefcaseImpl) displayName(ctx context.Context, nk runtime.NakamaModule, userID string) string {
	users, err := nk.UsersGetId(ctx, []string{userID}, nil)
	if err != nil || len(users) == 0 {
		return userID
	}
	if name := users[0].GetDisplayName(); name != "" {
		return name
	}
	if name := users[0].GetUsername(); name != "" {
		return name
	}
	return userID
}

func (p *briefcaseImpl) cmdList(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string, args []string) (*UseResult, error) {
	target := userID
	if len(args) > 0 && args[0] != "" {
		target = args[0]
	}

	inv, _, err := p.GetInventorySystem().Load(ctx, logger, nk, target)
	if err != nil {
		return nil, err
	}
	cfg := p.GetInventorySystem().Config()
	header := inventoryHeader(cfg, p.displayName(ctx, nk, target), inv.Len())
	if inv.Len() == 0 {
		return &UseResult{Message: header + "\nIt's empty."}, nil
	}
	return &UseResult{Message: header + "\n" + groupedLines(inv)}, nil
}

func (p *briefcaseImpl) cmdAll(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string, args []string) (*UseResult, error) {
	target := userID
	if len(args) > 0 && args[0] != "" {
		target = args[0]
	}

	inv, _, err := p.GetInventorySystem().Load(ctx, logger, nk, target)
	if err != nil {
		return nil, err
	}
	cfg := p.GetInventorySystem().Config()

	var sb strings.Builder
	sb.WriteString(inventoryHeader(cfg, p.displayName(ctx, nk, target), inv.Len()) + "\n")

	byType := make(map[ItemType][]*GroupedItem)
	for _, row := range inv.Grouped() {
		byType[row.Item.Type] = append(byType[row.Item.Type], row)
	}
	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, string(t))
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Fprintf(&sb, "— %s —\n", t)
		for _, row := range byType[ItemType(t)] {
			fmt.Fprintf(&sb, "• %s", row.Item.DisplayName())
			if row.Amount > 1 {
				fmt.Fprintf(&sb, " ×%d", row.Amount)
			}
			sb.WriteString("\n")
		}
	}

	if !cfg.HideCollectibles {
		economy := p.GetEconomySystem()
		money, errMoney := economy.WalletBalance(ctx, logger, nk, target, economy.Config().CurrencyKey)
		gems, errGems := economy.WalletBalance(ctx, logger, nk, target, economy.Config().GemCurrencyKey)
		if errMoney == nil && errGems == nil {
			fmt.Fprintf(&sb, "— collectibles —\n💵 $%d | 💎 %d %s", money, gems, economy.Config().GemCurrencyKey)
		}
	}
	return &UseResult{Message: strings.TrimRight(sb.String(), "\n")}, nil
}

func (p *briefcaseImpl) cmdInspect(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string, args []string) (*UseResult, error) {
	if len(args) == 0 {
		return nil, ErrBadInput
	}
	query := strings.Join(args, " ")

	inv, _, err := p.GetInventorySystem().Load(ctx, logger, nk, userID)
	if err != nil {
		return nil, err
	}

	item := inv.GetOne(query)
	if item == nil {
		if idx, convErr := strconv.Atoi(query); convErr == nil {
			item = inv.ByIndex(idx)
		}
	}
	if item == nil {
		item = inv.ByName(query)
	}
	if item == nil {
		return nil, ErrItemNotFound
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s [%s]\n", item.DisplayName(), item.Key)
	fmt.Fprintf(&sb, "Type: %s | Held: %d\n", item.Type, inv.Amount(item.Key))
	if item.FlavorText != "" {
		sb.WriteString(item.FlavorText + "\n")
	}
	if item.CannotSell || item.SellPrice <= 0 {
		sb.WriteString("Cannot be sold.\n")
	} else {
		fmt.Fprintf(&sb, "Sells for $%d.\n", item.SellPrice)
	}
	if item.CannotToss {
		sb.WriteString("Cannot be tossed.\n")
	}
	if item.CannotSend {
		sb.WriteString("Cannot be sent.\n")
	}
	if item.Type.IsEquippable() {
		fmt.Fprintf(&sb, "ATK %d | DEF %d | MAGIC %d\n", item.Atk, item.Def, item.Magic)
	}
	if item.Heal > 0 || item.Saturation > 0 {
		fmt.Fprintf(&sb, "Heals %d | Saturation %d\n", item.Heal, item.Saturation)
	}
	if item.Type == ItemTypeCheque {
		fmt.Fprintf(&sb, "Worth $%d when cashed.\n", item.ChequeAmount)
	}
	if item.Type == ItemTypeZip {
		fmt.Fprintf(&sb, "Contains %s.\n", plural(len(item.ZipContents), "item"))
	}
	return &UseResult{Message: strings.TrimRight(sb.String(), "\n")}, nil
}

func (p *briefcaseImpl) cmdUse(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string, args []string) (*UseResult, error) {
	return p.GetConsumeSystem().Use(ctx, logger, nk, userID, args)
}

func (p *briefcaseImpl) cmdTransfer(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string, args []string) (*UseResult, error) {
	if len(args) < 2 {
		return &UseResult{Message: "Usage: transfer <key>*<amount|all> <recipientId>"}, nil
	}
	key, amount, all, err := parseItemToken(args[0])
	if err != nil {
		return nil, err
	}

	result, err := p.GetEconomySystem().Transfer(ctx, logger, nk, userID, args[1], key, amount, all)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	if len(result.Sent) > 0 {
		fmt.Fprintf(&sb, "📦 Sent %s to %s.\n", plural(len(result.Sent), "item"), result.RecipientName)
	}
	if result.ChequeCredit > 0 {
		fmt.Fprintf(&sb, "💸 Cheques worth $%d went straight into %s's wallet.\n", result.ChequeCredit, result.RecipientName)
	}
	if len(result.Refused) > 0 {
		fmt.Fprintf(&sb, "🚫 %s refused to leave your briefcase:\n%s\n", plural(len(result.Refused), "item"), itemLines(result.Refused))
	}
	if sb.Len() == 0 {
		sb.WriteString("Nothing was sent.")
	}
	return &UseResult{Message: strings.TrimRight(sb.String(), "\n")}, nil
}

func (p *briefcaseImpl) cmdToss(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string, args []string) (*UseResult, error) {
	if len(args) < 1 {
		return &UseResult{Message: "Usage: toss <key>*<amount|all>"}, nil
	}
	key, amount, all, err := parseItemToken(args[0])
	if err != nil {
		return nil, err
	}

	result, err := p.GetEconomySystem().Toss(ctx, logger, nk, userID, key, amount, all)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	if len(result.Tossed) > 0 {
		fmt.Fprintf(&sb, "🗑️ Tossed %s.", plural(len(result.Tossed), "item"))
	}
	if len(result.Refused) > 0 {
		fmt.Fprintf(&sb, " %s refused to be thrown away.", plural(len(result.Refused), "item"))
	}
	if shortfall := result.Requested - len(result.Tossed) - len(result.Refused); shortfall > 0 {
		fmt.Fprintf(&sb, " You only had %d to begin with.", result.Requested-shortfall)
	}
	if sb.Len() == 0 {
		sb.WriteString("Nothing was tossed.")
	}
	fmt.Fprintf(&sb, " %d remain.", result.Remaining)
	return &UseResult{Message: strings.TrimSpace(sb.String())}, nil
}

func (p *briefcaseImpl) cmdSell(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string, args []string) (*UseResult, error) {
	if len(args) == 0 {
		return &UseResult{Message: "Usage: sell <key>*<amount|all> [more...]"}, nil
	}
	entries := make([]SellEntry, 0, len(args))
	for _, token := range args {
		key, amount, all, err := parseItemToken(token)
		if err != nil {
			return nil, err
		}
		entries = append(entries, SellEntry{Key: key, Amount: amount, All: all})
	}

	result, err := p.GetEconomySystem().Sell(ctx, logger, nk, userID, entries)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	for _, receipt := range result.Receipts {
		fmt.Fprintf(&sb, "💰 Sold %d× %s for $%d.\n", receipt.Amount, receipt.Item.DisplayName(), receipt.Earned)
	}
	for _, failure := range result.Failures {
		sb.WriteString("❌ " + failure + "\n")
	}
	if result.Total > 0 {
		fmt.Fprintf(&sb, "Total earned: $%d. Balance: $%d.", result.Total, result.Balance)
	}
	if sb.Len() == 0 {
		sb.WriteString("Nothing was sold.")
	}
	return &UseResult{Message: strings.TrimRight(sb.String(), "\n")}, nil
}

func (p *briefcaseImpl) cmdTop(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string, args []string) (*UseResult, error) {
	subject := "all"
	page := 1
	if len(args) > 0 {
		subject = strings.ToLower(args[0])
	}
	if len(args) > 1 {
		if n, err := strconv.Atoi(args[1]); err == nil && n > 0 {
			page = n
		}
	}

	inventories, err := p.GetInventorySystem().ListAll(ctx, logger, nk)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	if subject == "all" {
		totals := make(map[string]int)
		names := make(map[string]string)
		for _, inv := range inventories {
			for _, item := range inv.Items() {
				totals[item.Key]++
				names[item.Key] = item.DisplayName()
			}
		}
		keys := make([]string, 0, len(totals))
		for key := range totals {
			keys = append(keys, key)
		}
		sort.Slice(keys, func(a, b int) bool {
			if totals[keys[a]] != totals[keys[b]] {
				return totals[keys[a]] > totals[keys[b]]
			}
			return keys[a] < keys[b]
		})
		rows, totalPages := paginate(keys, page)
		fmt.Fprintf(&sb, "🏆 Most held items (page %d/%d)\n", page, totalPages)
		for idx, key := range rows {
			fmt.Fprintf(&sb, "%d. %s ×%d\n", (page-1)*topPageSize+idx+1, names[key], totals[key])
		}
	} else {
		type holder struct {
			userID string
			amount int
		}
		holders := make([]holder, 0, len(inventories))
		for ownerID, inv := range inventories {
			if n := inv.Amount(subject); n > 0 {
				holders = append(holders, holder{ownerID, n})
			}
		}
		if len(holders) == 0 {
			return &UseResult{Message: fmt.Sprintf("Nobody holds \"%s\".", subject)}, nil
		}
		sort.Slice(holders, func(a, b int) bool {
			if holders[a].amount != holders[b].amount {
				return holders[a].amount > holders[b].amount
			}
			return holders[a].userID < holders[b].userID
		})
		ids := make([]string, 0, len(holders))
		for _, h := range holders {
			ids = append(ids, h.userID)
		}
		rows, totalPages := paginate(ids, page)
		fmt.Fprintf(&sb, "🏆 Top holders of %s (page %d/%d)\n", subject, page, totalPages)
		for idx, ownerID := range rows {
			rank := (page-1)*topPageSize + idx
			fmt.Fprintf(&sb, "%d. %s ×%d\n", rank+1, p.displayName(ctx, nk, ownerID), holders[rank].amount)
		}
	}
	return &UseResult{Message: strings.TrimRight(sb.String(), "\n")}, nil
}

func paginate(rows []string, page int) ([]string, int) {
	totalPages := (len(rows) + topPageSize - 1) / topPageSize
	if totalPages == 0 {
		totalPages = 1
	}
	start := (page - 1) * topPageSize
	if start >= len(rows) {
		return nil, totalPages
	}
	end := start + topPageSize
	if end > len(rows) {
		end = len(rows)
	}
	return rows[start:end], totalPages
}

func (p *briefcaseImpl) cmdTrade(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string, args []string) (*UseResult, error) {
	if len(args) < 3 {
		return &UseResult{Message: "Usage: trade <uid|any> <yourKey>*<n> <theirKey>*<n>"}, nil
	}
	counterparty := args[0]
	if strings.EqualFold(counterparty, "any") {
		counterparty = ""
	}
	offerKey, offerAmount, offerAll, err := parseItemToken(args[1])
	if err != nil || offerAll {
		return nil, ErrInvalidAmount
	}
	wantKey, wantAmount, wantAll, err := parseItemToken(args[2])
	if err != nil || wantAll {
		return nil, ErrInvalidAmount
	}

	message, messageID, err := p.GetTradeSystem().Propose(ctx, logger, nk, userID, counterparty, offerKey, offerAmount, wantKey, wantAmount)
	if err != nil {
		return nil, err
	}
	return &UseResult{Message: message, MessageID: messageID}, nil
}
