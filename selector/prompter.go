package selector

import (
	"errors"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"

	"github.com/vitwit/bando/types"
)

// Prompter asks the buyer questions. Select returns the index of the chosen
// option.
type Prompter interface {
	Select(message string, options []string) (int, error)
	Input(message, defaultValue string) (string, error)
	Password(message string) (string, error)
	Confirm(message string) (bool, error)
}

// SurveyPrompter prompts on the terminal.
type SurveyPrompter struct {
	PageSize int
	Opts     []survey.AskOpt
}

var _ Prompter = (*SurveyPrompter)(nil)

func NewSurveyPrompter(opts ...survey.AskOpt) *SurveyPrompter {
	return &SurveyPrompter{PageSize: 15, Opts: opts}
}

func (p *SurveyPrompter) Select(message string, options []string) (int, error) {
	var idx int
	err := survey.AskOne(&survey.Select{
		Message:  message,
		Options:  options,
		PageSize: p.PageSize,
	}, &idx, p.Opts...)
	return idx, interrupted(err)
}

func (p *SurveyPrompter) Input(message, defaultValue string) (string, error) {
	var answer string
	err := survey.AskOne(&survey.Input{Message: message, Default: defaultValue}, &answer, p.Opts...)
	return answer, interrupted(err)
}

func (p *SurveyPrompter) Password(message string) (string, error) {
	var answer string
	opts := append([]survey.AskOpt{survey.WithValidator(survey.Required)}, p.Opts...)
	err := survey.AskOne(&survey.Password{Message: message}, &answer, opts...)
	return answer, interrupted(err)
}

func (p *SurveyPrompter) Confirm(message string) (bool, error) {
	var answer bool
	err := survey.AskOne(&survey.Confirm{Message: message}, &answer, p.Opts...)
	return answer, interrupted(err)
}

// interrupted turns Ctrl-C into a CANCELLED error.
func interrupted(err error) error {
	if errors.Is(err, terminal.InterruptErr) {
		return types.NewError(types.ErrCancelled, types.StageApproval, "interrupted", err)
	}
	return err
}
