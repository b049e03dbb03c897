package api

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/fuzzbed/gateway/apierr"
	"github.com/fuzzbed/gateway/common"
	"github.com/fuzzbed/gateway/db"
	"github.com/fuzzbed/gateway/model"
)

// pageParam reads pg_num and pg_size and clamps them into the supported
// window. Non-numeric values read as zero.
func pageParam(c echo.Context) db.Page {
	num, _ := strconv.Atoi(c.QueryParam("pg_num"))
	size, _ := strconv.Atoi(c.QueryParam("pg_size"))
	return db.NormalizePage(num, size)
}

// removalStateParam reads removal_state; Present is the default.
func removalStateParam(c echo.Context) (model.RemovalState, error) {
	state, ok := model.ParseRemovalState(c.QueryParam("removal_state"))
	if !ok {
		return "", apierr.ErrValidationFailed.WithMessage("unknown removal_state %q", c.QueryParam("removal_state"))
	}
	return state, nil
}

// removalActionParam reads the action parameter of DELETE endpoints; Delete
// is the default.
func removalActionParam(c echo.Context) (model.RemovalAction, error) {
	action, ok := model.ParseRemovalAction(c.QueryParam("action"))
	if !ok {
		return "", apierr.ErrValidationFailed.WithMessage("unknown action %q", c.QueryParam("action"))
	}
	return action, nil
}

func noBackupParam(c echo.Context) bool {
	return c.QueryParam("no_backup") == "true"
}

// dateRangeParam reads date_begin and date_end and normalizes them to the
// canonical wire format. Either bound may be absent.
func dateRangeParam(c echo.Context) (string, string, error) {
	from, to := "", ""
	if raw := c.QueryParam("date_begin"); raw != "" {
		t, err := common.ParseTime(raw)
		if err != nil {
			return "", "", apierr.ErrValidationFailed.WithMessage("invalid date_begin %q", raw)
		}
		from = common.FormatTime(t)
	}
	if raw := c.QueryParam("date_end"); raw != "" {
		t, err := common.ParseTime(raw)
		if err != nil {
			return "", "", apierr.ErrValidationFailed.WithMessage("invalid date_end %q", raw)
		}
		to = common.FormatTime(t)
	}
	return from, to, nil
}

// groupByParam reads group_by; day is the default.
func groupByParam(c echo.Context) (model.StatisticsGroupBy, error) {
	groupBy, ok := model.ParseGroupBy(c.QueryParam("group_by"))
	if !ok {
		return "", apierr.ErrValidationFailed.WithMessage("unknown group_by %q", c.QueryParam("group_by"))
	}
	return groupBy, nil
}
