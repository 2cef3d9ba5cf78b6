package action

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/undolab/saferun/internal/state"
)

func TestVocabularyComplete(t *testing.T) {
	assert.Len(t, Vocabulary, 10)
	for _, spec := range Vocabulary {
		assert.True(t, Known(spec.Type))
		assert.NotEmpty(t, spec.Capability)
	}
	assert.False(t, Known("drop_table"))
}

func TestLookup(t *testing.T) {
	spec, ok := Lookup(SetPostMeta)
	require.True(t, ok)
	assert.Equal(t, CapEditPosts, spec.Capability)
	assert.Equal(t, []string{"target", "key", "value"}, spec.RequiredParams)

	_, ok = Lookup("nope")
	assert.False(t, ok)
}

func TestNewCopiesParams(t *testing.T) {
	params := state.Object{"title": state.String("a")}
	act := New(CreatePost, params, "")

	params["title"] = state.String("mutated")
	assert.Equal(t, state.String("a"), act.Params["title"])
}

func TestValidateParams(t *testing.T) {
	tests := []struct {
		name    string
		act     Action
		missing string
	}{
		{
			"create_post ok",
			New(CreatePost, state.Object{"title": state.String("T")}, ""),
			"",
		},
		{
			"create_post missing title",
			New(CreatePost, state.Object{}, ""),
			"title",
		},
		{
			"create_post null title",
			New(CreatePost, state.Object{"title": state.Null{}}, ""),
			"title",
		},
		{
			"update_post missing target",
			New(UpdatePost, state.Object{"title": state.String("T")}, ""),
			"target",
		},
		{
			"set_post_meta missing value",
			New(SetPostMeta, state.Object{"key": state.String("k")}, "post-1"),
			"value",
		},
		{
			"set_option ok",
			New(SetOption, state.Object{"key": state.String("k"), "value": state.Int(1)}, ""),
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.act.ValidateParams()
			if tt.missing == "" {
				assert.NoError(t, err)
				return
			}
			var mpe *MissingParamError
			require.ErrorAs(t, err, &mpe)
			assert.Equal(t, tt.missing, mpe.Param)
		})
	}
}

func TestStringParam(t *testing.T) {
	act := New(SetOption, state.Object{"key": state.String("theme"), "value": state.Int(1)}, "")
	assert.Equal(t, "theme", act.StringParam("key"))
	assert.Equal(t, "", act.StringParam("value"))
	assert.Equal(t, "", act.StringParam("absent"))
}
