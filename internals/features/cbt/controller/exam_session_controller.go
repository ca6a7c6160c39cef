package controller

import (
	"context"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"edumarket_bff/internals/features/cbt/dto"
	"edumarket_bff/internals/features/cbt/service"
	helper "edumarket_bff/internals/helpers"
	"edumarket_bff/internals/helpers/logger"
	"edumarket_bff/internals/middlewares/auth"
	"edumarket_bff/internals/upstream"
)

// POST /api/cbt/attempts
func (ctl *CBTController) StartAttempt(c *fiber.Ctx) error {
	var req dto.StartExamRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := ctl.validate.Struct(req); err != nil {
		return helper.ValidationError(c, err)
	}

	ctx := c.UserContext()
	if max := ctl.questionCount(ctx, req.ExamID, req.SubjectID); max > 0 && req.NumQuestions > max {
		return helper.JsonValidationError(c, "Too many questions requested", map[string][]string{
			"num_questions": {fmt.Sprintf("must be at most %d", max)},
		})
	}

	sess := auth.CurrentSession(c)
	es, err := ctl.registry.Start(ctx, sess, service.TokenSource(ctl.sessions.TokenSource(sess.ID, sess.Tokens.UserID)), req)
	if err != nil {
		return cbtError(c, err)
	}
	return helper.JsonCreated(c, "Exam started", es.State())
}

// questionCount returns the subject's question bank size, or 0 when unknown.
func (ctl *CBTController) questionCount(ctx context.Context, examID, subjectID int64) int {
	subjects, err := ctl.catalog.ListSubjects(ctx, examID)
	if err != nil {
		logger.Log.WithError(err).WithField("exam_id", examID).Debug("subject lookup failed, skipping question count check")
		return 0
	}
	for _, s := range subjects {
		if s.ID == subjectID {
			return s.QuestionCount
		}
	}
	return 0
}

// active returns the session's attempt, hidden from anyone but the user who started it.
func (ctl *CBTController) active(c *fiber.Ctx) (*service.ExamSession, error) {
	sess := auth.CurrentSession(c)
	es, err := ctl.registry.Active(sess.ID)
	if err != nil {
		return nil, err
	}
	if es.UserID() != 0 && es.UserID() != sess.Tokens.UserID {
		return nil, service.ErrNoActiveAttempt
	}
	return es, nil
}

// GET /api/cbt/attempts/active
func (ctl *CBTController) GetActive(c *fiber.Ctx) error {
	es, err := ctl.active(c)
	if err != nil {
		return cbtError(c, err)
	}
	return helper.JsonOK(c, "ok", es.State())
}

// GET /api/cbt/attempts/active/pages/:page
func (ctl *CBTController) GetPage(c *fiber.Ctx) error {
	es, err := ctl.active(c)
	if err != nil {
		return cbtError(c, err)
	}
	page, ok := paramInt(c, "page")
	if !ok {
		return helper.JsonError(c, fiber.StatusBadRequest, "Invalid page")
	}
	view, err := es.LoadPage(c.UserContext(), page)
	if err != nil {
		return cbtError(c, err)
	}
	return helper.JsonOK(c, "ok", view)
}

// GET /api/cbt/attempts/active/questions/:number
func (ctl *CBTController) Jump(c *fiber.Ctx) error {
	es, err := ctl.active(c)
	if err != nil {
		return cbtError(c, err)
	}
	n, ok := paramInt(c, "number")
	if !ok {
		return helper.JsonError(c, fiber.StatusBadRequest, "Invalid question number")
	}
	view, err := es.Jump(c.UserContext(), n)
	if err != nil {
		return cbtError(c, err)
	}
	return helper.JsonOK(c, "ok", view)
}

// GET /api/cbt/attempts/active/index
func (ctl *CBTController) GetIndex(c *fiber.Ctx) error {
	es, err := ctl.active(c)
	if err != nil {
		return cbtError(c, err)
	}
	return helper.JsonOK(c, "ok", es.Index())
}

// POST /api/cbt/attempts/active/answers
//
// The selection is saved in the background; poll the page or index for the
// confirmed or failed outcome.
func (ctl *CBTController) SelectAnswer(c *fiber.Ctx) error {
	es, err := ctl.active(c)
	if err != nil {
		return cbtError(c, err)
	}
	var req dto.SelectAnswerRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := ctl.validate.Struct(req); err != nil {
		return helper.ValidationError(c, err)
	}
	st, err := es.SelectAnswer(c.UserContext(), req.QuestionID, req.ChoiceID)
	if err != nil {
		return cbtError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"success": true,
		"message": "Answer recorded",
		"data":    st,
	})
}

// POST /api/cbt/attempts/active/answers/:question_id/retry
func (ctl *CBTController) RetryAnswer(c *fiber.Ctx) error {
	es, err := ctl.active(c)
	if err != nil {
		return cbtError(c, err)
	}
	qid, err := strconv.ParseInt(c.Params("question_id"), 10, 64)
	if err != nil || qid <= 0 {
		return helper.JsonError(c, fiber.StatusBadRequest, "Invalid question id")
	}
	st, err := es.RetryAnswer(c.UserContext(), qid)
	if err != nil {
		return cbtError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"success": true,
		"message": "Retrying answer",
		"data":    st,
	})
}

// POST /api/cbt/attempts/active/submit
func (ctl *CBTController) Submit(c *fiber.Ctx) error {
	es, err := ctl.active(c)
	if err != nil {
		return cbtError(c, err)
	}
	res, err := es.Submit(c.UserContext(), service.TriggerManual)
	if err != nil {
		if res.Status != "" && upstream.KindOf(err) != upstream.KindAuthentication {
			// The attempt is still there; the client can retry.
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"success":    false,
				"message":    res.LastError,
				"error_code": "UPSTREAM_ERROR",
				"data":       res,
			})
		}
		return cbtError(c, err)
	}
	return helper.JsonOK(c, "Exam submitted", res)
}

// DELETE /api/cbt/attempts/active
func (ctl *CBTController) Discard(c *fiber.Ctx) error {
	if err := ctl.registry.Discard(auth.CurrentSession(c).ID); err != nil {
		return cbtError(c, err)
	}
	return helper.JsonOK(c, "Exam closed", nil)
}
