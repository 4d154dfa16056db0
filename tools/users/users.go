// Package users exposes user directory operations as agent tools.
package users

import (
	"context"
	"fmt"

	"github.com/m4xw311/dialagent/errors"
	"github.com/m4xw311/dialagent/tools"
	"github.com/m4xw311/dialagent/userdir"
	"gopkg.in/yaml.v3"
)

// All returns every user tool backed by dir, in the order they are offered
// to the model.
func All(dir userdir.Directory) []tools.Tool {
	return []tools.Tool{
		&GetUserByIDTool{dir: dir},
		&SearchUsersTool{dir: dir},
		&AddUserTool{dir: dir},
		&UpdateUserTool{dir: dir},
		&DeleteUserTool{dir: dir},
	}
}

type idArgs struct {
	ID int64 `json:"id" jsonschema_description:"The unique identifier of the user."`
}

type updateArgs struct {
	ID      int64              `json:"id" jsonschema_description:"The unique identifier of the user to update."`
	NewInfo userdir.UserUpdate `json:"new_info" jsonschema_description:"Fields to change; omitted fields stay as they are."`
}

var (
	createSchema = tools.GenerateSchema[userdir.UserCreate]()
	idSchema     = tools.GenerateSchema[idArgs]()
	searchSchema = tools.GenerateSchema[userdir.SearchQuery]()
	updateSchema = tools.GenerateSchema[updateArgs]()
)

// render formats directory results for the model.
func render(header string, v any) (string, error) {
	out, err := yaml.Marshal(v)
	if err != nil {
		return "", errors.Wrapf(err, "render result")
	}
	return fmt.Sprintf("%s\n```yaml\n%s```", header, out), nil
}

type AddUserTool struct{ dir userdir.Directory }

func (t *AddUserTool) Name() string { return "add_user" }
func (t *AddUserTool) Description() string {
	return "Adds a new user to the system with the provided details."
}
func (t *AddUserTool) InputSchema() map[string]any { return createSchema }

func (t *AddUserTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	in, err := tools.DecodeArgs[userdir.UserCreate](args)
	if err != nil {
		return "", errors.Wrapf(err, "decode user")
	}
	u, err := t.dir.Add(ctx, in)
	if err != nil {
		return "", err
	}
	return render(fmt.Sprintf("User successfully added with id %d:", u.ID), u)
}

type GetUserByIDTool struct{ dir userdir.Directory }

func (t *GetUserByIDTool) Name() string { return "get_user_by_id" }
func (t *GetUserByIDTool) Description() string {
	return "Retrieves a user's information from the system by their unique ID."
}
func (t *GetUserByIDTool) InputSchema() map[string]any { return idSchema }

func (t *GetUserByIDTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	in, err := tools.DecodeArgs[idArgs](args)
	if err != nil {
		return "", errors.Wrapf(err, "decode id")
	}
	u, err := t.dir.Get(ctx, in.ID)
	if err != nil {
		return "", err
	}
	return render("User:", u)
}

type SearchUsersTool struct{ dir userdir.Directory }

func (t *SearchUsersTool) Name() string { return "search_users" }
func (t *SearchUsersTool) Description() string {
	return "Searches for users in the system based on provided criteria such as name, surname, email, and gender."
}
func (t *SearchUsersTool) InputSchema() map[string]any { return searchSchema }

func (t *SearchUsersTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	q, err := tools.DecodeArgs[userdir.SearchQuery](args)
	if err != nil {
		return "", errors.Wrapf(err, "decode search query")
	}
	found, err := t.dir.Search(ctx, q)
	if err != nil {
		return "", err
	}
	if len(found) == 0 {
		return "No users found.", nil
	}
	return render(fmt.Sprintf("Found %d users:", len(found)), found)
}

type UpdateUserTool struct{ dir userdir.Directory }

func (t *UpdateUserTool) Name() string { return "update_user" }
func (t *UpdateUserTool) Description() string {
	return "Updates an existing user's information in the system."
}
func (t *UpdateUserTool) InputSchema() map[string]any { return updateSchema }

func (t *UpdateUserTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	in, err := tools.DecodeArgs[updateArgs](args)
	if err != nil {
		return "", errors.Wrapf(err, "decode update")
	}
	u, err := t.dir.Update(ctx, in.ID, in.NewInfo)
	if err != nil {
		return "", err
	}
	return render("User successfully updated:", u)
}

type DeleteUserTool struct{ dir userdir.Directory }

func (t *DeleteUserTool) Name() string { return "delete_user" }
func (t *DeleteUserTool) Description() string {
	return "Deletes a user from the system by their unique ID."
}
func (t *DeleteUserTool) InputSchema() map[string]any { return idSchema }

func (t *DeleteUserTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	in, err := tools.DecodeArgs[idArgs](args)
	if err != nil {
		return "", errors.Wrapf(err, "decode id")
	}
	if err := t.dir.Delete(ctx, in.ID); err != nil {
		return "", err
	}
	return fmt.Sprintf("User %d successfully deleted.", in.ID), nil
}
