package counter

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/invoiceportal/InvoicePortal/internal/pkg/cache"
	"github.com/invoiceportal/InvoicePortal/internal/pkg/database"
)

const invoiceViewsKey = "invoice:counters:views"

// AddInvoiceView increments the pending view counter for an invoice in Redis.
// Counters are drained to the invoices table by the flush worker, so a page
// view never costs a database write on the request path.
func AddInvoiceView(invoiceID uint) error {
	ctx := context.Background()
	field := strconv.FormatUint(uint64(invoiceID), 10)
	return cache.GetClient().HIncrBy(ctx, invoiceViewsKey, field, 1).Err()
}

// FlushInvoiceViews drains pending view counters into invoices.view_count.
func FlushInvoiceViews() error {
	return flushHashToColumn(invoiceViewsKey, "invoices", "view_count")
}

// flushHashToColumn drains a Redis hash and applies the increments as one
// batched UPDATE. The hash is RENAMEd to a temp key first so increments that
// land mid-flush are kept for the next round.
func flushHashToColumn(redisKey, table, column string) error {
	ctx := context.Background()
	rdb := cache.GetClient()

	tmpKey := fmt.Sprintf("%s:tmp:%d", redisKey, time.Now().UnixNano())
	if err := rdb.Do(ctx, "RENAME", redisKey, tmpKey).Err(); err != nil {
		if err == redis.Nil || strings.Contains(strings.ToLower(err.Error()), "no such key") {
			return nil
		}
		return err
	}
	defer rdb.Del(ctx, tmpKey)

	data, err := rdb.HGetAll(ctx, tmpKey).Result()
	if err != nil {
		return err
	}

	type pair struct {
		id  uint64
		inc int64
	}
	pairs := make([]pair, 0, len(data))
	for k, v := range data {
		id, perr := strconv.ParseUint(k, 10, 64)
		if perr != nil {
			continue
		}
		inc, ierr := strconv.ParseInt(v, 10, 64)
		if ierr != nil || inc == 0 {
			continue
		}
		pairs = append(pairs, pair{id: id, inc: inc})
	}
	if len(pairs) == 0 {
		return nil
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].id < pairs[j].id })

	// UPDATE <table> SET <column> = <column> + CASE id WHEN ? THEN ? ... END
	// WHERE id IN (...)
	var builder strings.Builder
	args := make([]interface{}, 0, len(pairs)*3)
	builder.WriteString("UPDATE ")
	builder.WriteString(table)
	builder.WriteString(" SET ")
	builder.WriteString(column)
	builder.WriteString(" = ")
	builder.WriteString(column)
	builder.WriteString(" + CASE id")
	for _, p := range pairs {
		builder.WriteString(" WHEN ? THEN ?")
		args = append(args, p.id, p.inc)
	}
	builder.WriteString(" END WHERE id IN (")
	for i, p := range pairs {
		if i > 0 {
			builder.WriteString(",")
		}
		builder.WriteString("?")
		args = append(args, p.id)
	}
	builder.WriteString(")")

	return database.GetDB().Exec(builder.String(), args...).Error
}
