package validator

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
)

type signup struct {
	Username string `json:"username" validate:"required,username"`
	Email    string `json:"email" validate:"required,email"`
	Level    string `json:"cefr_level,omitempty" validate:"omitempty,cefr"`
	Age      int    `json:"age" validate:"gte=6"`
}

func TestValidateStructPasses(t *testing.T) {
	require.NoError(t, ValidateStruct(signup{Username: "kid_01.a", Email: "kid@happycat.test", Level: "b1", Age: 9}))
	require.NoError(t, ValidateStruct(signup{Username: "mai", Email: "mai@happycat.test", Age: 6}))
}

func TestValidateStructCollectsFailures(t *testing.T) {
	err := ValidateStruct(signup{Username: "_x", Email: "nope", Level: "D1", Age: 3})

	var failures ValidationErrors
	require.ErrorAs(t, err, &failures)
	require.Len(t, failures, 4)

	byField := map[string]ValidationError{}
	for _, f := range failures {
		byField[f.Field] = f
	}
	require.Equal(t, "username", byField["username"].Tag)
	require.Equal(t, "email", byField["email"].Tag)
	require.Equal(t, "cefr", byField["cefr_level"].Tag)
	require.Equal(t, ValidationError{Field: "age", Tag: "gte", Param: "6"}, byField["age"])
}

func TestValidationMessages(t *testing.T) {
	cases := map[ValidationError]string{
		{Field: "email", Tag: "required"}:              "email is required",
		{Field: "cefr_level", Tag: "cefr"}:             "cefr level must be a CEFR level (A1-C2)",
		{Field: "password", Tag: "min", Param: "8"}:    "password must be at least 8",
		{Field: "status", Tag: "oneof", Param: "a b"}:  "status must be one of: a b",
		{Field: "score", Tag: "divisible", Param: "5"}: "score failed validation: divisible=5",
	}
	for in, want := range cases {
		require.Equal(t, want, in.Message())
	}

	require.Equal(t, "field failed validation: custom", ValidationError{Tag: "custom"}.Message())

	joined := ValidationErrors{{Field: "email", Tag: "required"}, {Field: "name", Tag: "max", Param: "50"}}
	require.Equal(t, "email is required; name must be at most 50", joined.Error())
	require.Equal(t, "validation failed", ValidationErrors{}.Error())
}

func TestRegisterValidation(t *testing.T) {
	require.NoError(t, RegisterValidation("meow", func(fl validator.FieldLevel) bool {
		return fl.Field().String() == "meow"
	}))

	type custom struct {
		Value string `validate:"meow"`
	}
	require.NoError(t, ValidateStruct(custom{Value: "meow"}))
	require.Error(t, ValidateStruct(custom{Value: "woof"}))
}

func TestValidateStructRejectsNonStruct(t *testing.T) {
	err := ValidateStruct("not a struct")
	require.Error(t, err)
	var failures ValidationErrors
	require.False(t, errors.As(err, &failures))
}
